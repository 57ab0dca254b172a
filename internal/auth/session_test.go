package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(t *testing.T, clock *fakeClock) (*SessionRegistry, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	reg, err := NewSessionRegistry(store.RefreshTokens(context.Background()), 30*24*time.Hour, WithRegistryClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSessionRegistry: %v", err)
	}
	return reg, store
}

func TestSessionIssueValidate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	reg, store := newTestRegistry(t, clock)

	raw, rec, err := reg.Issue(ctx, "user-1", ClientMeta{IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.TokenHash == raw {
		t.Fatal("raw token must not be stored verbatim")
	}
	if rec.TokenHash != HashToken(raw) {
		t.Fatal("stored hash does not match the raw token")
	}

	userID, err := reg.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected owner %q", userID)
	}

	// The store never sees the raw value.
	if _, err := store.RefreshTokens(ctx).FindByHash(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("raw token resolvable in store: %v", err)
	}
}

func TestSessionValidateUnknownToken(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, newFakeClock(time.Now()))

	if _, err := reg.Validate(ctx, "never-issued"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := reg.Validate(ctx, ""); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for empty token, got %v", err)
	}
}

func TestSessionRotateInvalidatesOldToken(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	reg, _ := newTestRegistry(t, clock)

	raw, _, err := reg.Issue(ctx, "user-1", ClientMeta{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	next, rec, err := reg.Rotate(ctx, raw, ClientMeta{})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if next == raw {
		t.Fatal("rotation returned the same raw token")
	}
	if rec.UserID != "user-1" {
		t.Fatalf("rotated token bound to %q", rec.UserID)
	}

	if _, err := reg.Validate(ctx, raw); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("spent token: expected ErrTokenAlreadyUsed, got %v", err)
	}
	if _, _, err := reg.Rotate(ctx, raw, ClientMeta{}); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("replayed rotation: expected ErrTokenAlreadyUsed, got %v", err)
	}
	if _, err := reg.Validate(ctx, next); err != nil {
		t.Fatalf("replacement token should validate: %v", err)
	}
}

func TestSessionConcurrentRotationSingleWinner(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, newFakeClock(time.Now()))

	raw, _, err := reg.Issue(ctx, "user-1", ClientMeta{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const racers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, _, err := reg.Rotate(ctx, raw, ClientMeta{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrTokenAlreadyUsed):
				losers++
			default:
				t.Errorf("unexpected rotation error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if losers != racers-1 {
		t.Fatalf("expected %d losers, got %d", racers-1, losers)
	}
}

func TestSessionRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, newFakeClock(time.Now()))

	raw, _, err := reg.Issue(ctx, "user-1", ClientMeta{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := reg.Revoke(ctx, raw); err != nil {
			t.Fatalf("Revoke attempt %d: %v", i, err)
		}
	}
	if _, err := reg.Validate(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("revoked token: expected ErrTokenNotFound, got %v", err)
	}
	if err := reg.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking unknown token: %v", err)
	}
}

func TestSessionRevokeAll(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, newFakeClock(time.Now()))

	var tokens []string
	for i := 0; i < 3; i++ {
		raw, _, err := reg.Issue(ctx, "user-1", ClientMeta{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		tokens = append(tokens, raw)
	}
	other, _, err := reg.Issue(ctx, "user-2", ClientMeta{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	count, err := reg.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revocations, got %d", count)
	}
	for _, raw := range tokens {
		if _, err := reg.Validate(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("expected ErrTokenNotFound after RevokeAll, got %v", err)
		}
	}
	if _, err := reg.Validate(ctx, other); err != nil {
		t.Fatalf("unrelated principal's token must survive: %v", err)
	}
}

func TestSessionExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	reg, err := NewSessionRegistry(store.RefreshTokens(ctx), time.Hour, WithRegistryClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSessionRegistry: %v", err)
	}

	raw, _, err := reg.Issue(ctx, "user-1", ClientMeta{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	replacement, _, err := reg.Rotate(ctx, raw, ClientMeta{})
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := reg.Validate(ctx, replacement); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expired token: expected ErrTokenNotFound, got %v", err)
	}
	if _, _, err := reg.Rotate(ctx, replacement, ClientMeta{}); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("rotating expired token: expected ErrTokenNotFound, got %v", err)
	}

	// Both the consumed original and the expired replacement are swept.
	count, err := reg.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 swept records, got %d", count)
	}
	if count, err := reg.SweepExpired(ctx); err != nil || count != 0 {
		t.Fatalf("second sweep: count=%d err=%v", count, err)
	}
}

func TestNewSessionRegistryValidation(t *testing.T) {
	if _, err := NewSessionRegistry(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	store := NewMemoryStore()
	if _, err := NewSessionRegistry(store.RefreshTokens(context.Background()), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero ttl, got %v", err)
	}
}
