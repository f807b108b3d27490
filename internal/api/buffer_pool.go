package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses request-body buffers. Section prompts carry the entire
// script written so far, so bodies grow into the tens of kilobytes and are
// worth recycling across sequential section calls.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	// Don't pool oversized buffers; let large prompt bodies be collected.
	const maxBufferSize = 64 * 1024
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
