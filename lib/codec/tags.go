package codec

import "fmt"

// Tag is the single byte discriminator written in front of every encoded value.
type Tag byte

const (
	TagNull             Tag = 'N' // absent value, no payload
	TagString           Tag = 'S' // UTF-8 text
	TagInt32            Tag = 'I' // 32-bit signed integer
	TagUint16           Tag = 'H' // 16-bit unsigned integer
	TagUint32           Tag = 'J' // 32-bit unsigned integer
	TagInt64            Tag = 'L' // 64-bit signed integer
	TagFloat32          Tag = 'F' // single precision float
	TagFloat64          Tag = 'B' // double precision float
	TagTime             Tag = 'D' // calendar timestamp
	TagByte             Tag = 'O' // single byte
	TagBytes            Tag = 'A' // raw byte sequence
	TagCompressedString Tag = 'C' // compressed text stored as bytes
)

// Valid reports whether t is one of the enumerated tags.
func (t Tag) Valid() bool {
	switch t {
	case TagNull, TagString, TagInt32, TagUint16, TagUint32, TagInt64,
		TagFloat32, TagFloat64, TagTime, TagByte, TagBytes, TagCompressedString:
		return true
	default:
		return false
	}
}

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagString:
		return "String"
	case TagInt32:
		return "Int32"
	case TagUint16:
		return "Uint16"
	case TagUint32:
		return "Uint32"
	case TagInt64:
		return "Int64"
	case TagFloat32:
		return "Float32"
	case TagFloat64:
		return "Float64"
	case TagTime:
		return "Time"
	case TagByte:
		return "Byte"
	case TagBytes:
		return "Bytes"
	case TagCompressedString:
		return "CompressedString"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(t))
	}
}
