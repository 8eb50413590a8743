package telemetry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSessionClosed is returned when an event is emitted for a session that
// has already been closed. Late events are rejected, never silently dropped.
var ErrSessionClosed = errors.New("session closed")

// EngineError marks a failure of the telemetry engine itself: a failed sink
// write, an uncreatable directory, a serialize error. It is distinguishable
// from observed test failures, which are domain data and never raised.
type EngineError struct {
	Op      string
	Channel Channel
	Err     error
}

func (e *EngineError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("telemetry: %s (%s channel): %v", e.Op, e.Channel, e.Err)
	}
	return fmt.Sprintf("telemetry: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Health aggregates non-fatal engine degradations during one session so the
// session manager can report them at close instead of discarding them.
type Health struct {
	mu           sync.Mutex
	degradations []*EngineError
}

func (h *Health) record(e *EngineError) {
	h.mu.Lock()
	h.degradations = append(h.degradations, e)
	h.mu.Unlock()
}

// Healthy reports whether the session ran without a single degradation.
func (h *Health) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.degradations) == 0
}

// Degradations returns the engine errors recorded so far, oldest first.
func (h *Health) Degradations() []*EngineError {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*EngineError, len(h.degradations))
	copy(out, h.degradations)
	return out
}
