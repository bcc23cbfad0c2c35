package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"time"
	"unique"
)

// readChunkSize is the largest payload part allocated before it is read
const readChunkSize = 64 << 10

// Decoder reads tagged values from a sequential byte stream.
type Decoder struct {
	r       io.Reader
	scratch [12]byte
}

// NewDecoder creates a decoder reading from r. Reads are issued in payload sized
// chunks, wrap r in a bufio.Reader for small values.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// --------------------------------------------------------------------------
// Tagged reads
// --------------------------------------------------------------------------

// ReadValue reads one tag and its payload. It accepts every tag of the table and
// returns Null for N. An unknown tag fails with an UnsupportedTagError.
func (d *Decoder) ReadValue() (Value, error) {
	tag, err := d.ReadTag()
	if err != nil {
		return nil, err
	}
	return d.readPayload(tag)
}

// readPayload dispatches to the payload reader for tag
func (d *Decoder) readPayload(tag Tag) (Value, error) {
	switch tag {
	case TagNull:
		return Null{}, nil
	case TagString:
		v, err := d.ReadString()
		return String(v), err
	case TagInt32:
		v, err := d.ReadInt32()
		return Int32(v), err
	case TagUint16:
		v, err := d.ReadUint16()
		return Uint16(v), err
	case TagUint32:
		v, err := d.ReadUint32()
		return Uint32(v), err
	case TagInt64:
		v, err := d.ReadInt64()
		return Int64(v), err
	case TagFloat32:
		v, err := d.ReadFloat32()
		return Float32(v), err
	case TagFloat64:
		v, err := d.ReadFloat64()
		return Float64(v), err
	case TagTime:
		v, err := d.ReadTime()
		return Time{v}, err
	case TagByte:
		v, err := d.ReadByte()
		return Byte(v), err
	case TagBytes:
		v, err := d.ReadBytes()
		return Bytes(v), err
	case TagCompressedString:
		v, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		return NewLazyString(v), nil
	default:
		return nil, &UnsupportedTagError{Tag: tag}
	}
}

// ReadExpected reads a nullable field of a statically known kind. It returns ok=false
// for N, a TagMismatchError for any tag other than expected, and otherwise the payload
// decoded with read.
func ReadExpected[T any](d *Decoder, expected Tag, read func(*Decoder) (T, error)) (value T, ok bool, err error) {
	tag, err := d.ReadTag()
	if err != nil {
		return value, false, err
	}
	if tag == TagNull {
		return value, false, nil
	}
	if tag != expected {
		return value, false, &TagMismatchError{Found: tag, Expected: expected}
	}
	value, err = read(d)
	if err != nil {
		return value, false, err
	}
	return value, true, nil
}

// ReadInt32Field reads a nullable int32 field (tag I).
func (d *Decoder) ReadInt32Field() (int32, bool, error) {
	return ReadExpected(d, TagInt32, (*Decoder).ReadInt32)
}

// ReadInt64Field reads a nullable int64 field (tag L).
func (d *Decoder) ReadInt64Field() (int64, bool, error) {
	return ReadExpected(d, TagInt64, (*Decoder).ReadInt64)
}

// ReadFloat32Field reads a nullable float32 field (tag F).
func (d *Decoder) ReadFloat32Field() (float32, bool, error) {
	return ReadExpected(d, TagFloat32, (*Decoder).ReadFloat32)
}

// ReadFloat64Field reads a nullable float64 field (tag B).
func (d *Decoder) ReadFloat64Field() (float64, bool, error) {
	return ReadExpected(d, TagFloat64, (*Decoder).ReadFloat64)
}

// ReadTimeField reads a nullable timestamp field (tag D).
func (d *Decoder) ReadTimeField() (time.Time, bool, error) {
	return ReadExpected(d, TagTime, (*Decoder).ReadTime)
}

// ReadStringField reads a nullable text field (tag S). With intern set, equal contents
// are canonicalized to one shared string, which pays off for keys and property aliases
// that repeat across many entries.
func (d *Decoder) ReadStringField(intern bool) (string, bool, error) {
	s, ok, err := ReadExpected(d, TagString, (*Decoder).ReadString)
	if err != nil || !ok || !intern {
		return s, ok, err
	}
	return unique.Make(s).Value(), true, nil
}

// --------------------------------------------------------------------------
// Raw payload reads (no tag, no null handling)
// --------------------------------------------------------------------------

// ReadTag reads a single tag byte without validating it. A stream that ends cleanly
// before the tag returns io.EOF.
func (d *Decoder) ReadTag() (Tag, error) {
	if _, err := io.ReadFull(d.r, d.scratch[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	return Tag(d.scratch[0]), nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if err := d.fill(1); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

// ReadUint16 reads a big endian uint16.
func (d *Decoder) ReadUint16() (uint16, error) {
	if err := d.fill(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d.scratch[:2]), nil
}

// ReadUint32 reads a big endian uint32.
func (d *Decoder) ReadUint32() (uint32, error) {
	if err := d.fill(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d.scratch[:4]), nil
}

// ReadInt32 reads a big endian int32.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

// ReadInt64 reads a big endian int64.
func (d *Decoder) ReadInt64() (int64, error) {
	if err := d.fill(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(d.scratch[:8])), nil
}

// ReadFloat32 reads IEEE-754 single precision bits.
func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads IEEE-754 double precision bits.
func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadInt64()
	return math.Float64frombits(uint64(v)), err
}

// ReadTime reads unix seconds and nanoseconds and returns the instant in UTC.
func (d *Decoder) ReadTime() (time.Time, error) {
	if err := d.fill(12); err != nil {
		return time.Time{}, err
	}
	sec := int64(binary.BigEndian.Uint64(d.scratch[:8]))
	nsec := binary.BigEndian.Uint32(d.scratch[8:12])
	if nsec >= uint32(time.Second) {
		return time.Time{}, fmt.Errorf("codec: invalid nanoseconds %d in timestamp", nsec)
	}
	return time.Unix(sec, int64(nsec)).UTC(), nil
}

// ReadBytes reads a length prefixed byte sequence. A zero length yields an empty,
// non-nil slice. Large payloads are read in chunks, so a corrupt length prefix on a
// short stream only allocates what was actually read.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.readLen()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, min(n, readChunkSize))
	for len(buf) < n {
		chunk := min(n-len(buf), readChunkSize)
		buf = slices.Grow(buf, chunk)
		if _, err := io.ReadFull(d.r, buf[len(buf):len(buf)+chunk]); err != nil {
			return nil, truncated(err)
		}
		buf = buf[:len(buf)+chunk]
	}
	return buf, nil
}

// ReadString reads length prefixed UTF-8 text.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readLen reads and validates a length prefix
func (d *Decoder) readLen() (int, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	if n > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return int(n), nil
}

// fill reads exactly n bytes into the scratch buffer
func (d *Decoder) fill(n int) error {
	if _, err := io.ReadFull(d.r, d.scratch[:n]); err != nil {
		return truncated(err)
	}
	return nil
}

// truncated reports a payload that ended early as io.ErrUnexpectedEOF
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("codec: truncated payload: %w", err)
}

// Unmarshal decodes exactly one value from b. Trailing bytes are an error.
func Unmarshal(b []byte) (Value, error) {
	r := bytes.NewReader(b)
	v, err := NewDecoder(r).ReadValue()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("codec: %d trailing bytes after value", r.Len())
	}
	return v, nil
}
