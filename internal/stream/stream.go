// Package stream fan-outs account lifecycle events to live subscribers.
// The admin dashboard consumes it over SSE to show registrations and logins
// as they happen.
package stream

import (
	"context"
	"sync"
	"time"
)

// EventType classifies an account event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventLoggedIn   EventType = "logged_in"
)

// AccountEvent is one line in the live feed. It carries only public fields.
type AccountEvent struct {
	Type      EventType `json:"type"`
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers (SSE clients). Slow
// subscribers are dropped rather than blocking publishers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan AccountEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan AccountEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan AccountEvent {
	ch := make(chan AccountEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt AccountEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the current subscriber count.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
