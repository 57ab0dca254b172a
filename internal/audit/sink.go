package audit

import (
	"context"
	"fmt"
	"time"

	"careportal.org/internal/auth"
	"careportal.org/internal/obs"
)

// Publisher fans entries out to live subscribers, e.g. the admin event feed.
type Publisher interface {
	Publish(entry auth.AuditEntry)
}

// Sink delivers auth events to the audit log line stream and, when a store is
// attached, to the append-only audit table. It satisfies auth.AuditSink.
type Sink struct {
	store  auth.AuditStore
	events Publisher
	now    func() time.Time
}

var _ auth.AuditSink = (*Sink)(nil)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithStore persists events in addition to logging them.
func WithStore(store auth.AuditStore) SinkOption {
	return func(s *Sink) {
		s.store = store
	}
}

// WithPublisher forwards events to live subscribers in addition to logging
// them.
func WithPublisher(events Publisher) SinkOption {
	return func(s *Sink) {
		s.events = events
	}
}

// NewSink builds a Sink. Without options events are logged but not persisted.
func NewSink(opts ...SinkOption) *Sink {
	s := &Sink{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit logs the event and appends it to the audit store when one is attached.
// Delivery failures are logged, never propagated: audit must not take the
// request path down with it.
func (s *Sink) Emit(ctx context.Context, event string, fields map[string]any) {
	switch event {
	case auth.EventLoginSuccess:
		obs.ObserveLogin("success")
	case auth.EventLoginFailure:
		obs.ObserveLogin("failure")
	case auth.EventRefreshReplay:
		obs.ObserveRefreshRotation("replay")
	}

	if err := LogEvent(ctx, event, fields); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit log write failed",
			"event": event,
			"err":   err.Error(),
		})
	}
	if s.store == nil && s.events == nil {
		return
	}

	entry := &auth.AuditEntry{
		OccurredAt: s.now().UTC(),
		Event:      event,
		RequestID:  RequestIDFromContext(ctx),
		Metadata:   make(map[string]string, len(fields)),
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry.ActorUserID = principal.ID
		entry.ActorOrgID = principal.OrganizationID
	}
	for k, v := range fields {
		switch k {
		case "user_id":
			if entry.ActorUserID == "" {
				entry.ActorUserID = fmt.Sprint(v)
			}
		case "resource_kind":
			entry.ResourceKind = fmt.Sprint(v)
		case "resource_id":
			entry.ResourceID = fmt.Sprint(v)
		}
		entry.Metadata[k] = fmt.Sprint(v)
	}
	if s.events != nil {
		s.events.Publish(*entry)
	}
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "audit store append failed",
			"event": event,
			"err":   err.Error(),
		})
	}
}
