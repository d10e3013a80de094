// Response body compression.
//
// DESIGN: gzip writers are pooled to avoid re-allocating compressor
// state on every response. Only buffered (non-streaming) bodies are
// compressed, and only past the configured threshold.
package optimizer

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
)

// gzipWriterPool pools gzip writers to reduce allocations.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	},
}

// gzipBytes compresses body and returns the compressed bytes.
func gzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(gz)
	gz.Reset(&buf)

	if _, err := gz.Write(body); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
