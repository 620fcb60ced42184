// Package sse frames streamed completions as server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/easeaico/scene-studio/internal/orchestrator"
)

// DoneSentinel terminates every stream; it is never JSON.
const DoneSentinel = "[DONE]"

type chunkPayload struct {
	Content string `json:"content"`
}

// Writer implements orchestrator.Sink on an http.ResponseWriter.
// Headers are sent with the first frame, so a failure before any content
// can still become a plain JSON error response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	started bool
	done    bool
}

// NewWriter wraps w.
func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Committed reports whether a response, stream or error, has been written.
func (s *Writer) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started || s.done
}

// Started reports whether any event has been written.
func (s *Writer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Writer) Chunk(text string) error {
	data, err := json.Marshal(chunkPayload{Content: text})
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}
	return s.frame("message", data)
}

// Error relays a failure. Before the stream has started it is written as a
// JSON response with the failure's status code instead.
func (s *Writer) Error(f orchestrator.Failure) error {
	s.mu.Lock()
	started := s.started
	if !started {
		// the error response replaces the stream entirely
		s.done = true
	}
	s.mu.Unlock()

	if !started {
		WriteJSON(s.w, StatusFor(f.Kind), f)
		return nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode error event: %w", err)
	}
	return s.frame("error", data)
}

// Done writes the terminator once. Later calls are no-ops.
func (s *Writer) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.startLocked()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", DoneSentinel); err != nil {
		return fmt.Errorf("failed to write stream terminator: %w", err)
	}
	s.flushLocked()
	return nil
}

func (s *Writer) frame(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("stream already finished")
	}
	s.startLocked()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	s.flushLocked()
	return nil
}

func (s *Writer) startLocked() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *Writer) flushLocked() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind orchestrator.FailureKind) int {
	switch kind {
	case orchestrator.FailureBadRequest:
		return http.StatusBadRequest
	case orchestrator.FailureNotFound:
		return http.StatusNotFound
	case orchestrator.FailureBudget:
		return http.StatusRequestEntityTooLarge
	case orchestrator.FailureCanceled:
		// nginx's "client closed request"; rarely seen by anyone
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to write json response", "error", err)
	}
}
