// Package testutil holds helpers shared by the integration suites.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/labelops/backend/internal/domain/shared"
)

// RecordingHandler is a shared.EventHandler that keeps every event it sees
type RecordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

// NewRecordingHandler creates a handler for eventTypes, or all events when none are given
func NewRecordingHandler(eventTypes ...string) *RecordingHandler {
	return &RecordingHandler{eventTypes: eventTypes}
}

func (h *RecordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *RecordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

// Handled returns a copy of the events seen so far
func (h *RecordingHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.DomainEvent, len(h.handled))
	copy(out, h.handled)
	return out
}

// Count returns how many events of eventType were handled; "" counts all
func (h *RecordingHandler) Count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if eventType == "" {
		return len(h.handled)
	}
	n := 0
	for _, ev := range h.handled {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

// SetError makes Handle fail with err
func (h *RecordingHandler) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// WaitForCondition polls condition until it holds or timeout passes
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// WaitForEventCount waits until h has handled at least count events of eventType
func WaitForEventCount(t *testing.T, h *RecordingHandler, eventType string, count int, timeout time.Duration) bool {
	t.Helper()

	return WaitForCondition(t, func() bool {
		return h.Count(eventType) >= count
	}, timeout, 10*time.Millisecond)
}
