package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrStreamingUnsupported reports a ResponseWriter without flush support.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// Encode writes one SSE frame: `event: <name>\ndata: <json>\n\n`.
func Encode(writer io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", event.EventName(), data)
	return err
}

// SSEWriter streams events over one HTTP response. After the first terminal
// event the stream is closed and every further Send is a no-op: credits and
// saga state never depend on a listener being present.
type SSEWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewSSEWriter prepares the response for server-sent events.
func NewSSEWriter(writer http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{writer: writer, flusher: flusher}, nil
}

// Send encodes and flushes one event. Terminal events close the stream.
func (sse *SSEWriter) Send(event Event) error {
	sse.mu.Lock()
	defer sse.mu.Unlock()
	if sse.closed {
		return nil
	}
	if err := Encode(sse.writer, event); err != nil {
		return err
	}
	sse.flusher.Flush()
	if IsTerminal(event) {
		sse.closed = true
	}
	return nil
}

// Closed reports whether a terminal event has been sent.
func (sse *SSEWriter) Closed() bool {
	sse.mu.Lock()
	defer sse.mu.Unlock()
	return sse.closed
}
