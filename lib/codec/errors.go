package codec

import (
	"errors"
	"fmt"
)

// MaxPayloadSize is the largest length prefix a Decoder accepts for text and byte payloads.
// Anything larger is treated as corrupt data instead of being allocated.
const MaxPayloadSize = 256 << 20

// ErrPayloadTooLarge is returned when a length prefix exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("codec: payload length exceeds limit")

// UnsupportedTagError is returned when a decoder reads a tag byte outside the tag table.
// It indicates corrupt data or a writer using a newer tag table.
type UnsupportedTagError struct {
	Tag Tag
}

func (e *UnsupportedTagError) Error() string {
	return fmt.Sprintf("codec: cannot decode unknown tag %q (0x%02x)", byte(e.Tag), byte(e.Tag))
}

// TagMismatchError is returned by the typed field readers when the tag on the wire
// belongs to a different kind than the one the caller expects.
type TagMismatchError struct {
	Found    Tag
	Expected Tag
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("codec: cannot decode tag %q, expected %q", byte(e.Found), byte(e.Expected))
}

// UnsupportedValueTypeError is returned when a value outside the encodable kinds is
// handed to the encoder.
type UnsupportedValueTypeError struct {
	Type string
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("codec: value of type %s cannot be encoded", e.Type)
}
