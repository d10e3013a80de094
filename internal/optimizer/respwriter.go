// Response writer wrappers.
//
// DESIGN: Two shapes of in-flight response:
//   - bufferedResponse: captures the full body so annotators can merge
//     headers and compress before anything reaches the wire.
//   - streamWriter: passthrough for streaming responses; headers are
//     applied once, just before the first byte, and Flush is forwarded
//     so SSE chunks leave immediately.
package optimizer

import (
	"bytes"
	"net/http"
)

// bufferedResponse is an http.ResponseWriter that holds the response
// until the annotators have run.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

// flush copies the buffered response onto the real writer.
func (b *bufferedResponse) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	w.WriteHeader(b.status)
	_, err := w.Write(b.body.Bytes())
	return err
}

// streamWriter passes writes through while running beforeFirst exactly
// once before headers leave.
type streamWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	beforeFirst func(w http.ResponseWriter, status int)
}

func (s *streamWriter) WriteHeader(status int) {
	if !s.wroteHeader {
		s.wroteHeader = true
		s.status = status
		if s.beforeFirst != nil {
			s.beforeFirst(s.ResponseWriter, status)
		}
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}

// Flush implements http.Flusher so SSE and NDJSON chunks are not held
// back by the server.
func (s *streamWriter) Flush() {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
