package storage

import (
	"bytes"
	"io"
)

// Buffer accumulates an object's bytes before upload and tracks how many
// have been written. The manifest writer polls Size to decide when the
// current manifest is full and a new one should be started.
type Buffer struct {
	data bytes.Buffer
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Write(p []byte) (int, error) {
	return b.data.Write(p)
}

// Size returns the number of bytes written so far.
func (b *Buffer) Size() int64 {
	return int64(b.data.Len())
}

// Reader returns a reader over the accumulated bytes. Writes after the
// call are not visible through an already obtained reader.
func (b *Buffer) Reader() io.Reader {
	return bytes.NewReader(b.data.Bytes())
}
