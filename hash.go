package cacache

import (
	"fmt"
	"io"
	"sync"
)

// Default size for buffers used when streaming content
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for content I/O
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// copyContent streams src into dst using a pooled buffer.
func copyContent(dst io.Writer, src io.Reader) (int64, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	n, err := io.CopyBuffer(dst, src, buffer)
	if err != nil {
		return n, fmt.Errorf("failed to copy content: %w", err)
	}
	return n, nil
}
