package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"careportal.org/internal/auth"
	"careportal.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{
		ID:             "user-42",
		OrganizationID: "org-1",
		Roles:          auth.NewRoleSet(auth.RoleTherapist),
	})

	if err := LogEvent(ctx, "login_success", map[string]any{"ip": "10.0.0.1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "login_success" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["org_id"] != "org-1" {
		t.Fatalf("unexpected org id: %v", entry["org_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["ip"] != "10.0.0.1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

type capturingAuditStore struct {
	entries []*auth.AuditEntry
}

func (c *capturingAuditStore) Append(_ context.Context, entry *auth.AuditEntry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func TestSinkPersistsEntries(t *testing.T) {
	captureLog(t)

	store := &capturingAuditStore{}
	sink := NewSink(WithStore(store))

	ctx := WithRequestID(context.Background(), "req-9")
	sink.Emit(ctx, auth.EventAccessDenied, map[string]any{
		"user_id":       "user-7",
		"resource_kind": "case",
		"resource_id":   "case-3",
		"reason":        "not_member",
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Event != auth.EventAccessDenied {
		t.Fatalf("unexpected event %q", entry.Event)
	}
	if entry.ActorUserID != "user-7" {
		t.Fatalf("unexpected actor %q", entry.ActorUserID)
	}
	if entry.ResourceKind != "case" || entry.ResourceID != "case-3" {
		t.Fatalf("unexpected resource %q/%q", entry.ResourceKind, entry.ResourceID)
	}
	if entry.RequestID != "req-9" {
		t.Fatalf("unexpected request id %q", entry.RequestID)
	}
	if entry.Metadata["reason"] != "not_member" {
		t.Fatalf("unexpected metadata %v", entry.Metadata)
	}
}

type capturingPublisher struct {
	entries []auth.AuditEntry
}

func (c *capturingPublisher) Publish(entry auth.AuditEntry) {
	c.entries = append(c.entries, entry)
}

func TestSinkForwardsToPublisher(t *testing.T) {
	captureLog(t)

	pub := &capturingPublisher{}
	sink := NewSink(WithPublisher(pub))

	sink.Emit(context.Background(), auth.EventLoginSuccess, map[string]any{"user_id": "user-1"})

	if len(pub.entries) != 1 {
		t.Fatalf("expected 1 published entry, got %d", len(pub.entries))
	}
	if pub.entries[0].Event != auth.EventLoginSuccess || pub.entries[0].ActorUserID != "user-1" {
		t.Fatalf("unexpected entry %+v", pub.entries[0])
	}
}
