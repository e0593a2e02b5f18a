package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// SSEWriter is an io.Writer that forwards each write as one Server-Sent
// Event. The executor copies snippet output into it while the run is in
// progress.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	event   string
}

// NewSSEWriter returns nil if w cannot flush.
func NewSSEWriter(w http.ResponseWriter, event string) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEWriter{w: w, flusher: flusher, event: event}
}

func (s *SSEWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeEvent(s.w, s.event, string(p)); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}

// writeEvent frames payload as one event. Every line gets its own "data:"
// prefix so printed newlines cannot end the event early or forge another.
func writeEvent(w http.ResponseWriter, event, payload string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}

func sendSSE(w http.ResponseWriter, event, payload string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	_ = writeEvent(w, event, payload)
	flusher.Flush()
}

// sendSSEDone sends the final result as JSON.
func sendSSEDone(w http.ResponseWriter, data string) {
	sendSSE(w, "done", data)
}

func sendSSEError(w http.ResponseWriter, errMsg string) {
	sendSSE(w, "error", errMsg)
}
