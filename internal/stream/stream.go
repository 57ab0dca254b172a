// Package stream fan-outs audit entries to live subscribers. It backs the
// administrative event feed without adding a broker dependency: subscribers
// that fall behind lose events rather than slowing the publisher.
package stream

import (
	"context"
	"sync"

	"careportal.org/internal/auth"
)

// Stream fan-outs audit entries to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan auth.AuditEntry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan auth.AuditEntry),
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// entries. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan auth.AuditEntry {
	ch := make(chan auth.AuditEntry, 16)

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

// Publish fan-outs the entry to all subscribers.
func (s *Stream) Publish(entry auth.AuditEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- entry:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
