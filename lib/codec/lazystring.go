package codec

import (
	"bytes"
	"fmt"
	"github.com/pierrec/lz4/v4"
	"io"
	"sync"
)

// LazyString is text kept in its compressed form until somebody reads it (tag C).
//
// The compressed bytes are an LZ4 frame. Decompression runs at most once, the first
// call to Text pays for it and every later call returns the memoized result (or the
// memoized error).
//
// Thread-safety: A LazyString is safe for concurrent use. Readers racing on the first
// Text call all block until the single decompression finishes.
type LazyString struct {
	compressed []byte

	once sync.Once
	text string
	err  error
}

// NewLazyString wraps already compressed bytes. The slice is owned by the LazyString
// afterwards and must not be modified by the caller.
func NewLazyString(compressed []byte) *LazyString {
	if compressed == nil {
		compressed = []byte{}
	}
	return &LazyString{compressed: compressed}
}

// CompressString compresses s into a LazyString. The uncompressed text is kept as the
// memoized value, so calling Text on the result never decompresses.
func CompressString(s string) (*LazyString, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := io.WriteString(zw, s); err != nil {
		return nil, fmt.Errorf("codec: compress string: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: compress string: %w", err)
	}

	lz := &LazyString{compressed: buf.Bytes()}
	lz.once.Do(func() { lz.text = s })
	return lz, nil
}

// Bytes returns the compressed representation. The returned slice must not be modified.
func (l *LazyString) Bytes() []byte {
	return l.compressed
}

// Text returns the decompressed text, decompressing on the first call.
func (l *LazyString) Text() (string, error) {
	l.once.Do(func() {
		raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(l.compressed)))
		if err != nil {
			l.err = fmt.Errorf("codec: decompress string: %w", err)
			return
		}
		l.text = string(raw)
	})
	return l.text, l.err
}

// String implements fmt.Stringer. Decompression errors are rendered inline.
func (l *LazyString) String() string {
	s, err := l.Text()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return s
}
