// Package codec implements the self-describing binary value format used to persist
// and replicate cache entries.
//
// Every encoded value starts with a single tag byte that names its kind, followed
// by a kind specific payload. The tag table is the binary compatibility surface of
// everything snapKV writes to disk or into the raft log, so the byte values must
// never change:
//
//	N  absent (no payload)        S  UTF-8 text
//	I  int32                      H  uint16
//	J  uint32                     L  int64
//	F  float32                    B  float64
//	D  timestamp                  O  single byte
//	A  raw bytes                  C  compressed text (stored as bytes)
//
// Fixed width payloads are big endian. Text, raw bytes and compressed text carry a
// uint32 length prefix. Timestamps are written as int64 unix seconds followed by
// uint32 nanoseconds and are always decoded in UTC.
//
// Key Components:
//
//   - Value: a sealed sum type. Only the types of this package implement it, so the
//     set of encodable kinds is checked by the compiler. ValueOf converts plain Go
//     values at the boundary to foreign code.
//
//   - Encoder / Decoder: wrap a caller owned io.Writer / io.Reader. ReadValue accepts
//     every tag, the ReadXxxField methods expect one tag (or N) and report a
//     TagMismatchError for anything else. The ReadXxx / WriteXxx methods read and
//     write bare payloads without a tag.
//
//   - LazyString: compressed text that is only decompressed the first time Text is
//     called. The codec itself never decompresses.
//
// Error handling:
//
//	UnsupportedTagError, TagMismatchError and UnsupportedValueTypeError are distinct
//	types so callers can tell corrupt wire data from a programming error. Unknown tags
//	are always a hard failure, they are never skipped.
//
// Thread Safety:
//
//	The codec holds no shared state. An Encoder or Decoder must only be used by one
//	goroutine at a time, distinct instances never interact. LazyString is safe for
//	concurrent use.
//
// Usage:
//
//	var buf bytes.Buffer
//	enc := codec.NewEncoder(&buf)
//	_ = enc.WriteValue(codec.Int32(42))
//
//	dec := codec.NewDecoder(&buf)
//	v, ok, err := dec.ReadInt32Field() // 42, true, nil
package codec
