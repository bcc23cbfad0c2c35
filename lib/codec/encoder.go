package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Encoder writes tagged values to a sequential byte stream.
//
// Write errors of the underlying writer are returned as they are. After an error the
// stream is left in an undefined state.
type Encoder struct {
	w       io.Writer
	scratch [12]byte
}

// NewEncoder creates an encoder writing to w. Every value results in at least two
// writes (tag and payload), wrap w in a bufio.Writer when writing to a file or socket.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// --------------------------------------------------------------------------
// Tagged writes
// --------------------------------------------------------------------------

// WriteValue writes the tag of v followed by its payload. A nil interface or a nil
// *LazyString is not a value, pass Null{} to write the absent marker.
func (e *Encoder) WriteValue(v Value) error {
	switch tv := v.(type) {
	case Null:
		return e.WriteTag(TagNull)
	case String:
		return e.tagged(TagString, func() error { return e.WriteString(string(tv)) })
	case Int32:
		return e.tagged(TagInt32, func() error { return e.WriteInt32(int32(tv)) })
	case Uint16:
		return e.tagged(TagUint16, func() error { return e.WriteUint16(uint16(tv)) })
	case Uint32:
		return e.tagged(TagUint32, func() error { return e.WriteUint32(uint32(tv)) })
	case Int64:
		return e.tagged(TagInt64, func() error { return e.WriteInt64(int64(tv)) })
	case Float32:
		return e.tagged(TagFloat32, func() error { return e.WriteFloat32(float32(tv)) })
	case Float64:
		return e.tagged(TagFloat64, func() error { return e.WriteFloat64(float64(tv)) })
	case Time:
		return e.tagged(TagTime, func() error { return e.WriteTime(tv.Time) })
	case Byte:
		return e.tagged(TagByte, func() error { return e.WriteByte(byte(tv)) })
	case Bytes:
		return e.tagged(TagBytes, func() error { return e.WriteBytes(tv) })
	case *LazyString:
		if tv == nil {
			return &UnsupportedValueTypeError{Type: "nil *codec.LazyString"}
		}
		return e.tagged(TagCompressedString, func() error { return e.WriteBytes(tv.Bytes()) })
	case nil:
		return &UnsupportedValueTypeError{Type: "nil"}
	default:
		return &UnsupportedValueTypeError{Type: fmt.Sprintf("%T", v)}
	}
}

// WriteAny converts v with ValueOf and writes it. Use this at boundaries where values
// arrive as plain Go types.
func (e *Encoder) WriteAny(v any) error {
	tv, err := ValueOf(v)
	if err != nil {
		return err
	}
	return e.WriteValue(tv)
}

// tagged writes the tag and then the payload
func (e *Encoder) tagged(tag Tag, payload func() error) error {
	if err := e.WriteTag(tag); err != nil {
		return err
	}
	return payload()
}

// --------------------------------------------------------------------------
// Raw payload writes (no tag)
// --------------------------------------------------------------------------

// WriteTag writes a single tag byte.
func (e *Encoder) WriteTag(t Tag) error {
	return e.WriteByte(byte(t))
}

// WriteByte writes a single byte.
func (e *Encoder) WriteByte(b byte) error {
	e.scratch[0] = b
	return e.flush(1)
}

// WriteUint16 writes a big endian uint16.
func (e *Encoder) WriteUint16(v uint16) error {
	binary.BigEndian.PutUint16(e.scratch[:2], v)
	return e.flush(2)
}

// WriteUint32 writes a big endian uint32.
func (e *Encoder) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(e.scratch[:4], v)
	return e.flush(4)
}

// WriteInt32 writes a big endian int32.
func (e *Encoder) WriteInt32(v int32) error {
	return e.WriteUint32(uint32(v))
}

// WriteInt64 writes a big endian int64.
func (e *Encoder) WriteInt64(v int64) error {
	binary.BigEndian.PutUint64(e.scratch[:8], uint64(v))
	return e.flush(8)
}

// WriteFloat32 writes IEEE-754 single precision bits.
func (e *Encoder) WriteFloat32(v float32) error {
	return e.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes IEEE-754 double precision bits.
func (e *Encoder) WriteFloat64(v float64) error {
	return e.WriteInt64(int64(math.Float64bits(v)))
}

// WriteTime writes t as unix seconds and nanoseconds.
func (e *Encoder) WriteTime(t time.Time) error {
	binary.BigEndian.PutUint64(e.scratch[:8], uint64(t.Unix()))
	binary.BigEndian.PutUint32(e.scratch[8:12], uint32(t.Nanosecond()))
	return e.flush(12)
}

// WriteBytes writes a length prefixed byte sequence.
func (e *Encoder) WriteBytes(b []byte) error {
	if len(b) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(b))
	}
	if err := e.WriteUint32(uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := e.w.Write(b)
	return err
}

// WriteString writes length prefixed UTF-8 text.
func (e *Encoder) WriteString(s string) error {
	if len(s) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(s))
	}
	if err := e.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(e.w, s)
	return err
}

// flush writes the first n scratch bytes
func (e *Encoder) flush(n int) error {
	_, err := e.w.Write(e.scratch[:n])
	return err
}

// --------------------------------------------------------------------------
// Convenience
// --------------------------------------------------------------------------

// Marshal encodes a single value into a new byte slice.
func Marshal(v Value) ([]byte, error) {
	buf := &sliceWriter{b: make([]byte, 0, max(Size(v), 1))}
	if err := NewEncoder(buf).WriteValue(v); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// sliceWriter is an append only io.Writer
type sliceWriter struct {
	b []byte
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}
