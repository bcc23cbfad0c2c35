package codec

import (
	"bytes"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Value (sealed sum type)
// --------------------------------------------------------------------------

// Value is a single encodable value. The interface is sealed: only the types declared
// in this file implement it, one per tag.
type Value interface {
	// Tag returns the tag byte this value is encoded with.
	Tag() Tag
	taggedValue()
}

// Null is the explicit "no value" marker (tag N).
type Null struct{}

// String is UTF-8 text (tag S).
type String string

// Int32 is a 32-bit signed integer (tag I).
type Int32 int32

// Uint16 is a 16-bit unsigned integer (tag H).
type Uint16 uint16

// Uint32 is a 32-bit unsigned integer (tag J).
type Uint32 uint32

// Int64 is a 64-bit signed integer (tag L).
type Int64 int64

// Float32 is a single precision float (tag F).
type Float32 float32

// Float64 is a double precision float (tag B).
type Float64 float64

// Time is a calendar timestamp (tag D). The location is not encoded, decoded values are UTC.
type Time struct {
	time.Time
}

// Byte is a single byte (tag O).
type Byte byte

// Bytes is a raw byte sequence (tag A). An empty, non-nil slice is a valid value.
type Bytes []byte

func (Null) Tag() Tag        { return TagNull }
func (String) Tag() Tag      { return TagString }
func (Int32) Tag() Tag       { return TagInt32 }
func (Uint16) Tag() Tag      { return TagUint16 }
func (Uint32) Tag() Tag      { return TagUint32 }
func (Int64) Tag() Tag       { return TagInt64 }
func (Float32) Tag() Tag     { return TagFloat32 }
func (Float64) Tag() Tag     { return TagFloat64 }
func (Time) Tag() Tag        { return TagTime }
func (Byte) Tag() Tag        { return TagByte }
func (Bytes) Tag() Tag       { return TagBytes }
func (*LazyString) Tag() Tag { return TagCompressedString }

func (Null) taggedValue()        {}
func (String) taggedValue()      {}
func (Int32) taggedValue()       {}
func (Uint16) taggedValue()      {}
func (Uint32) taggedValue()      {}
func (Int64) taggedValue()       {}
func (Float32) taggedValue()     {}
func (Float64) taggedValue()     {}
func (Time) taggedValue()        {}
func (Byte) taggedValue()        {}
func (Bytes) taggedValue()       {}
func (*LazyString) taggedValue() {}

// NewTime wraps t, dropping the monotonic clock reading and the location.
func NewTime(t time.Time) Time {
	return Time{t.Round(0).UTC()}
}

// Equal reports whether both timestamps describe the same instant.
func (t Time) Equal(o Time) bool {
	return t.Time.Equal(o.Time)
}

// IsNull reports whether v is absent, either a nil interface or the Null marker.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal compares two values by kind and content. LazyStrings are compared by their
// compressed bytes, so no decompression happens.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch av := a.(type) {
	case Time:
		return av.Equal(b.(Time))
	case Bytes:
		return bytes.Equal(av, b.(Bytes))
	case *LazyString:
		bv := b.(*LazyString)
		if av == nil || bv == nil {
			return av == bv
		}
		return bytes.Equal(av.Bytes(), bv.Bytes())
	default:
		return a == b
	}
}

// Size returns the number of bytes v occupies on the wire, including the tag.
func Size(v Value) int {
	switch tv := v.(type) {
	case Null:
		return 1
	case String:
		return 1 + 4 + len(tv)
	case Int32, Uint32, Float32:
		return 1 + 4
	case Uint16:
		return 1 + 2
	case Int64, Float64:
		return 1 + 8
	case Time:
		return 1 + 8 + 4
	case Byte:
		return 1 + 1
	case Bytes:
		return 1 + 4 + len(tv)
	case *LazyString:
		if tv == nil {
			return 0
		}
		return 1 + 4 + len(tv.Bytes())
	default:
		return 0
	}
}

// --------------------------------------------------------------------------
// Dynamic boundary
// --------------------------------------------------------------------------

// ValueOf converts a plain Go value into a Value. nil becomes Null, every Go type that
// has a matching kind (string, int32, uint16, uint32, int64, float32, float64,
// time.Time, byte, []byte) is wrapped, and Values are returned as they are.
// Any other type fails with an UnsupportedValueTypeError; nothing is stringified.
func ValueOf(v any) (Value, error) {
	switch tv := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		if lz, ok := tv.(*LazyString); ok && lz == nil {
			return nil, &UnsupportedValueTypeError{Type: "nil *codec.LazyString"}
		}
		return tv, nil
	case string:
		return String(tv), nil
	case int32:
		return Int32(tv), nil
	case uint16:
		return Uint16(tv), nil
	case uint32:
		return Uint32(tv), nil
	case int64:
		return Int64(tv), nil
	case float32:
		return Float32(tv), nil
	case float64:
		return Float64(tv), nil
	case time.Time:
		return NewTime(tv), nil
	case byte:
		return Byte(tv), nil
	case []byte:
		return Bytes(tv), nil
	default:
		return nil, &UnsupportedValueTypeError{Type: fmt.Sprintf("%T", v)}
	}
}

// Interface returns the plain Go value held by v (nil for Null, the decompressed text
// for a LazyString is NOT produced, the *LazyString itself is returned).
func Interface(v Value) any {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(tv)
	case Int32:
		return int32(tv)
	case Uint16:
		return uint16(tv)
	case Uint32:
		return uint32(tv)
	case Int64:
		return int64(tv)
	case Float32:
		return float32(tv)
	case Float64:
		return float64(tv)
	case Time:
		return tv.Time
	case Byte:
		return byte(tv)
	case Bytes:
		return []byte(tv)
	default:
		return tv
	}
}

// Validate reports an UnsupportedValueTypeError for values WriteValue would reject
// (a nil interface or a nil *LazyString).
func Validate(v Value) error {
	switch tv := v.(type) {
	case nil:
		return &UnsupportedValueTypeError{Type: "nil"}
	case *LazyString:
		if tv == nil {
			return &UnsupportedValueTypeError{Type: "nil *codec.LazyString"}
		}
	}
	return nil
}

// Clone returns a copy of v that shares no mutable memory with it. Only Bytes are
// copied, every other kind is immutable.
func Clone(v Value) Value {
	if b, ok := v.(Bytes); ok {
		return Bytes(append([]byte{}, b...))
	}
	return v
}
