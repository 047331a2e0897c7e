package web

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bodyReader strips a leading UTF-8 BOM and counts the bytes it hands out.
// Spreadsheet exports written on Windows often carry the BOM, which the
// JSON decoder rejects.
type bodyReader struct {
	r       *bufio.Reader
	checked bool
	n       int64
}

func newBodyReader(r io.Reader) *bodyReader {
	return &bodyReader{r: bufio.NewReader(r)}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if head, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			b.r.Discard(len(utf8BOM))
		}
	}
	n, err := b.r.Read(p)
	b.n += int64(n)
	return n, err
}

// BytesRead reports the payload bytes read so far, excluding any BOM.
func (b *bodyReader) BytesRead() int64 { return b.n }
