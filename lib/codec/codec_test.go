package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/google/go-cmp/cmp"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"
)

// valueComparer compares values the way the codec defines equality
var valueComparer = cmp.Comparer(func(a, b Value) bool { return Equal(a, b) })

// testValues returns one or more representative values per kind
func testValues(t testing.TB) []Value {
	lazy, err := CompressString("compressed property value")
	if err != nil {
		t.Fatalf("CompressString: %v", err)
	}
	return []Value{
		Null{},
		String("hello"),
		String(""),
		String("ünïcödé ✓"),
		Int32(42),
		Int32(-2147483648),
		Uint16(65535),
		Uint32(4294967295),
		Int64(-1),
		Int64(9223372036854775807),
		Float32(3.5),
		Float64(-0.125),
		NewTime(time.Date(2024, 2, 29, 13, 37, 0, 123456789, time.UTC)),
		NewTime(time.Unix(-86400, 0)),
		Byte(0xff),
		Bytes([]byte{1, 2, 3}),
		Bytes([]byte{}),
		lazy,
		NewLazyString([]byte{}),
	}
}

// TestRoundTrip writes all test values into one stream and reads them back with ReadValue
func TestRoundTrip(t *testing.T) {
	values := testValues(t)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range values {
		if err := enc.WriteValue(v); err != nil {
			t.Fatalf("WriteValue(%v): %v", v, err)
		}
	}

	dec := NewDecoder(&buf)
	got := make([]Value, 0, len(values))
	for range values {
		v, err := dec.ReadValue()
		if err != nil {
			t.Fatalf("ReadValue: %v", err)
		}
		got = append(got, v)
	}

	if diff := cmp.Diff(values, got, valueComparer); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// the stream must be fully consumed
	if _, err := dec.ReadValue(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

// TestSizeMatchesEncoding checks that Size predicts the encoded length
func TestSizeMatchesEncoding(t *testing.T) {
	for _, v := range testValues(t) {
		b, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		if len(b) != Size(v) {
			t.Errorf("Size(%s) = %d, encoded %d bytes", v.Tag(), Size(v), len(b))
		}
	}
}

// TestWireFormat pins the exact bytes of a few values
func TestWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  []byte
	}{
		{"Null", Null{}, []byte{'N'}},
		{"Int32", Int32(42), []byte{'I', 0, 0, 0, 42}},
		{"Uint16", Uint16(0x0102), []byte{'H', 1, 2}},
		{"Byte", Byte(7), []byte{'O', 7}},
		{"EmptyString", String(""), []byte{'S', 0, 0, 0, 0}},
		{"String", String("ab"), []byte{'S', 0, 0, 0, 2, 'a', 'b'}},
		{"EmptyBytes", Bytes{}, []byte{'A', 0, 0, 0, 0}},
		{"Int64", Int64(1), []byte{'L', 0, 0, 0, 0, 0, 0, 0, 1}},
		{"Time", NewTime(time.Unix(1, 5)), []byte{'D', 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Marshal(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

// TestTypedFields tests the expected tag readers with present, absent and mismatching values
func TestTypedFields(t *testing.T) {
	when := time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, v := range []Value{
		Int32(42), Null{},
		Int64(1 << 40), Null{},
		Float32(1.5), Null{},
		Float64(2.25), Null{},
		NewTime(when), Null{},
		String("text"), Null{}, String(""),
	} {
		if err := enc.WriteValue(v); err != nil {
			t.Fatalf("WriteValue: %v", err)
		}
	}
	dec := NewDecoder(&buf)

	if v, ok, err := dec.ReadInt32Field(); err != nil || !ok || v != 42 {
		t.Errorf("ReadInt32Field = %v, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadInt32Field(); err != nil || ok {
		t.Errorf("ReadInt32Field on N = %v, %v", ok, err)
	}
	if v, ok, err := dec.ReadInt64Field(); err != nil || !ok || v != 1<<40 {
		t.Errorf("ReadInt64Field = %v, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadInt64Field(); err != nil || ok {
		t.Errorf("ReadInt64Field on N = %v, %v", ok, err)
	}
	if v, ok, err := dec.ReadFloat32Field(); err != nil || !ok || v != 1.5 {
		t.Errorf("ReadFloat32Field = %v, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadFloat32Field(); err != nil || ok {
		t.Errorf("ReadFloat32Field on N = %v, %v", ok, err)
	}
	if v, ok, err := dec.ReadFloat64Field(); err != nil || !ok || v != 2.25 {
		t.Errorf("ReadFloat64Field = %v, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadFloat64Field(); err != nil || ok {
		t.Errorf("ReadFloat64Field on N = %v, %v", ok, err)
	}
	if v, ok, err := dec.ReadTimeField(); err != nil || !ok || !v.Equal(when) {
		t.Errorf("ReadTimeField = %v, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadTimeField(); err != nil || ok {
		t.Errorf("ReadTimeField on N = %v, %v", ok, err)
	}
	if v, ok, err := dec.ReadStringField(true); err != nil || !ok || v != "text" {
		t.Errorf("ReadStringField = %q, %v, %v", v, ok, err)
	}
	if _, ok, err := dec.ReadStringField(false); err != nil || ok {
		t.Errorf("ReadStringField on N = %v, %v", ok, err)
	}
	// empty text is present, not absent
	if v, ok, err := dec.ReadStringField(false); err != nil || !ok || v != "" {
		t.Errorf("ReadStringField on empty = %q, %v, %v", v, ok, err)
	}
}

// TestTagMismatch checks that a typed read never reinterprets another kind
func TestTagMismatch(t *testing.T) {
	b, err := Marshal(Int32(42))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	_, _, err = NewDecoder(bytes.NewReader(b)).ReadFloat32Field()

	var mismatch *TagMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TagMismatchError, got %v", err)
	}
	if mismatch.Found != TagInt32 || mismatch.Expected != TagFloat32 {
		t.Errorf("unexpected mismatch details: %+v", mismatch)
	}

	// same for text fields
	b, _ = Marshal(Bytes("not text"))
	_, _, err = NewDecoder(bytes.NewReader(b)).ReadStringField(false)
	if !errors.As(err, &mismatch) || mismatch.Expected != TagString {
		t.Errorf("expected TagMismatchError for string field, got %v", err)
	}
}

// TestUnknownTags checks every byte outside the tag table
func TestUnknownTags(t *testing.T) {
	for b := 0; b < 256; b++ {
		tag := Tag(b)
		if tag.Valid() {
			continue
		}

		_, err := NewDecoder(bytes.NewReader([]byte{byte(b), 0, 0, 0, 0})).ReadValue()

		var unsupported *UnsupportedTagError
		if !errors.As(err, &unsupported) {
			t.Fatalf("tag 0x%02x: expected UnsupportedTagError, got %v", b, err)
		}
		if unsupported.Tag != tag {
			t.Errorf("tag 0x%02x: error carries tag %v", b, unsupported.Tag)
		}
	}
}

// TestUnsupportedValues checks that the encoder rejects values outside the union
func TestUnsupportedValues(t *testing.T) {
	var nilLazy *LazyString

	tests := []struct {
		name  string
		write func(*Encoder) error
	}{
		{"nil interface", func(e *Encoder) error { return e.WriteValue(nil) }},
		{"nil lazy string", func(e *Encoder) error { return e.WriteValue(nilLazy) }},
		{"int", func(e *Encoder) error { return e.WriteAny(42) }},
		{"bool", func(e *Encoder) error { return e.WriteAny(true) }},
		{"struct", func(e *Encoder) error { return e.WriteAny(struct{ A int }{1}) }},
		{"map", func(e *Encoder) error { return e.WriteAny(map[string]string{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := tt.write(NewEncoder(&buf))

			var unsupported *UnsupportedValueTypeError
			if !errors.As(err, &unsupported) {
				t.Fatalf("expected UnsupportedValueTypeError, got %v", err)
			}
			if buf.Len() != 0 {
				t.Errorf("nothing should be written for an unsupported value, got %v", buf.Bytes())
			}
		})
	}
}

// TestValueOf tests the conversion of plain go values
func TestValueOf(t *testing.T) {
	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null{}},
		{"s", String("s")},
		{int32(-3), Int32(-3)},
		{uint16(3), Uint16(3)},
		{uint32(3), Uint32(3)},
		{int64(3), Int64(3)},
		{float32(0.5), Float32(0.5)},
		{float64(0.5), Float64(0.5)},
		{when, NewTime(when)},
		{byte(9), Byte(9)},
		{[]byte("x"), Bytes("x")},
		{Int32(1), Int32(1)},
	}

	for _, tt := range tests {
		got, err := ValueOf(tt.in)
		if err != nil {
			t.Errorf("ValueOf(%#v): %v", tt.in, err)
			continue
		}
		if !Equal(got, tt.want) {
			t.Errorf("ValueOf(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
		if tt.in != nil && Interface(got) == nil {
			t.Errorf("Interface(%#v) lost the value", got)
		}
	}
}

// TestTruncatedInput checks that a stream ending inside a payload is reported
func TestTruncatedInput(t *testing.T) {
	full, err := Marshal(String("truncated"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for cut := 1; cut < len(full); cut++ {
		_, err := NewDecoder(bytes.NewReader(full[:cut])).ReadValue()
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("cut at %d: expected io.ErrUnexpectedEOF, got %v", cut, err)
		}
	}
}

// TestPayloadTooLarge checks the length prefix guard
func TestPayloadTooLarge(t *testing.T) {
	data := []byte{'A', 0xff, 0xff, 0xff, 0xff}
	_, err := NewDecoder(bytes.NewReader(data)).ReadValue()
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

// TestHugeLengthShortStream checks that a large length prefix on a short stream
// fails without allocating the announced size
func TestHugeLengthShortStream(t *testing.T) {
	data := binary.BigEndian.AppendUint32([]byte{'A'}, MaxPayloadSize)
	data = append(data, 1, 2, 3)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err := NewDecoder(bytes.NewReader(data)).ReadValue()
	runtime.ReadMemStats(&after)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if grown := after.TotalAlloc - before.TotalAlloc; grown > 1<<20 {
		t.Errorf("decoding allocated %d bytes for a 3 byte payload", grown)
	}
}

// TestBytesAcrossChunks decodes payloads around the chunk boundary
func TestBytesAcrossChunks(t *testing.T) {
	for _, size := range []int{readChunkSize - 1, readChunkSize, readChunkSize + 1, 3*readChunkSize + 7} {
		payload := make(Bytes, size)
		for i := range payload {
			payload[i] = byte(i % 251)
		}
		data, err := Marshal(payload)
		if err != nil {
			t.Fatalf("Marshal(%d): %v", size, err)
		}
		v, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%d): %v", size, err)
		}
		if !Equal(v, payload) {
			t.Errorf("payload of %d bytes changed after decoding", size)
		}
	}
}

// TestUnmarshal tests the single value helper
func TestUnmarshal(t *testing.T) {
	v, err := Unmarshal([]byte{'I', 0, 0, 0, 42})
	if err != nil || !Equal(v, Int32(42)) {
		t.Errorf("Unmarshal = %v, %v", v, err)
	}
	if _, err := Unmarshal([]byte{'I', 0, 0, 0, 42, 'N'}); err == nil {
		t.Error("expected error for trailing bytes")
	}
	if _, err := Unmarshal(nil); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF for empty input, got %v", err)
	}
}

// TestStringFieldIntern checks that interned strings keep their content
func TestStringFieldIntern(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	alias := strings.Repeat("alias", 3)
	_ = enc.WriteValue(String(alias))
	_ = enc.WriteValue(String(alias))

	dec := NewDecoder(&buf)
	a, _, errA := dec.ReadStringField(true)
	b, _, errB := dec.ReadStringField(true)
	if errA != nil || errB != nil {
		t.Fatalf("ReadStringField: %v / %v", errA, errB)
	}
	if a != alias || b != alias {
		t.Errorf("interned strings differ from input: %q %q", a, b)
	}
}

// TestValidateAndClone tests the helpers used by stores before keeping a value
func TestValidateAndClone(t *testing.T) {
	var nilLazy *LazyString
	var unsupported *UnsupportedValueTypeError

	if err := Validate(nil); !errors.As(err, &unsupported) {
		t.Errorf("Validate(nil) = %v", err)
	}
	if err := Validate(nilLazy); !errors.As(err, &unsupported) {
		t.Errorf("Validate(nil lazy) = %v", err)
	}
	if err := Validate(Null{}); err != nil {
		t.Errorf("Validate(Null) = %v", err)
	}

	orig := Bytes{1, 2, 3}
	clone := Clone(orig).(Bytes)
	clone[0] = 9
	if orig[0] != 1 {
		t.Error("Clone must not share the backing array")
	}
	if !Equal(Clone(String("x")), String("x")) {
		t.Error("Clone should keep immutable values")
	}
}
