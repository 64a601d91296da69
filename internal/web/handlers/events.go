package handlers

import (
	"sync"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
)

// Event types streamed to dashboard clients.
const (
	EventSnapshot = "snapshot"
	EventState    = "state"
	EventOutcome  = "outcome"
)

// KioskEvent is one event of the kiosk stream.
type KioskEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// EventBroadcaster fans kiosk events out to SSE and websocket listeners.
type EventBroadcaster struct {
	listeners []chan KioskEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan KioskEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan KioskEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (b *EventBroadcaster) RemoveListener(ch chan KioskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners. It never blocks.
func (b *EventBroadcaster) SendEvent(event KioskEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (b *EventBroadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
