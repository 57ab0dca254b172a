package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"careportal.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func refreshRows(tok *auth.RefreshToken) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token_hash", "issued_at", "expires_at",
		"client_ip", "user_agent", "revoked_at", "consumed",
	})
	rows.AddRow(tok.ID, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt,
		tok.ClientIP, tok.UserAgent, tok.RevokedAt, tok.Consumed)
	return rows
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`insert into users`)).
		WithArgs(sqlmock.AnyArg(), "org-1", "dup@example.org", "hash", auth.UserStatusActive).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users(context.Background()).Create(context.Background(), &auth.User{
		OrganizationID: "org-1",
		Email:          "Dup@Example.org",
		PasswordHash:   "hash",
		Status:         auth.UserStatusActive,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select id, organization_id, email, password_hash, status, created_at, updated_at`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Users(context.Background()).Find(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRolesForUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select role`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("therapist").AddRow("org_admin"))

	roles, err := store.Roles(context.Background()).RolesForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("RolesForUser: %v", err)
	}
	if len(roles) != 2 || roles[0] != auth.RoleTherapist || roles[1] != auth.RoleOrgAdmin {
		t.Fatalf("unexpected roles %v", roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRolesForUserRejectsUnknownRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`select role`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("superuser"))

	if _, err := store.Roles(context.Background()).RolesForUser(context.Background(), "user-1"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConsumeSpendsActiveToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	spent := &auth.RefreshToken{
		ID:        "tok-1",
		UserID:    "user-1",
		TokenHash: "hash-1",
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
		Consumed:  true,
	}
	mock.ExpectQuery(regexp.QuoteMeta(`update refresh_tokens`)).
		WithArgs("hash-1", now).
		WillReturnRows(refreshRows(spent))

	tok, err := store.RefreshTokens(context.Background()).Consume(context.Background(), "hash-1", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if tok.UserID != "user-1" {
		t.Fatalf("unexpected owner %q", tok.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumeClassifiesReplay(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// The conditional update matches nothing...
	mock.ExpectQuery(regexp.QuoteMeta(`update refresh_tokens`)).
		WithArgs("hash-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	// ...and the record turns out to have been consumed already.
	revoked := now.Add(-time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`select id, user_id, token_hash`)).
		WithArgs("hash-1").
		WillReturnRows(refreshRows(&auth.RefreshToken{
			ID:        "tok-1",
			UserID:    "user-1",
			TokenHash: "hash-1",
			IssuedAt:  now.Add(-time.Hour),
			ExpiresAt: now.Add(time.Hour),
			RevokedAt: &revoked,
			Consumed:  true,
		}))

	if _, err := store.RefreshTokens(context.Background()).Consume(context.Background(), "hash-1", now); !errors.Is(err, auth.ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`update refresh_tokens`)).
		WithArgs("hash-x", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`select id, user_id, token_hash`)).
		WithArgs("hash-x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.RefreshTokens(context.Background()).Consume(context.Background(), "hash-x", now); !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRevokeAllForUserCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`delete from refresh_tokens`)).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.RefreshTokens(context.Background()).RevokeAllForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestDeleteExpiredCount(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`delete from refresh_tokens`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := store.RefreshTokens(context.Background()).DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected 7, got %d", count)
	}
}

func TestAuditAppend(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`insert into audit_log`)).
		WithArgs(sqlmock.AnyArg(), now, "user-1", "org-1", "access_denied", "case", "case-9", sqlmock.AnyArg(), "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Audit(context.Background()).Append(context.Background(), &auth.AuditEntry{
		OccurredAt:   now,
		ActorUserID:  "user-1",
		ActorOrgID:   "org-1",
		Event:        "access_denied",
		ResourceKind: "case",
		ResourceID:   "case-9",
		Metadata:     map[string]string{"reason": "not_member"},
		RequestID:    "req-1",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCaseResolver(t *testing.T) {
	store, mock := newMockStore(t)
	resolver := NewCaseResolver(store)

	mock.ExpectQuery(regexp.QuoteMeta(`select organization_id, owner_user_id, primary_therapist_id`)).
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id", "owner_user_id", "primary_therapist_id"}).
			AddRow("org-1", "owner-1", "therapist-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`select user_id, role`)).
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).
			AddRow("carer-1", "viewer").
			AddRow("owner-1", "viewer"))

	desc, err := resolver.Resolve(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Missing {
		t.Fatal("unexpected missing flag")
	}
	if desc.OrganizationID != "org-1" {
		t.Fatalf("unexpected org %q", desc.OrganizationID)
	}
	if desc.Members["owner-1"] != auth.MemberOwner {
		t.Fatalf("owner relation must outrank member rows, got %q", desc.Members["owner-1"])
	}
	if desc.Members["therapist-1"] != auth.MemberManager {
		t.Fatalf("primary therapist must map to manager, got %q", desc.Members["therapist-1"])
	}
	if desc.Members["carer-1"] != auth.MemberViewer {
		t.Fatalf("unexpected carer role %q", desc.Members["carer-1"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCaseResolverMissingCase(t *testing.T) {
	store, mock := newMockStore(t)
	resolver := NewCaseResolver(store)

	mock.ExpectQuery(regexp.QuoteMeta(`select organization_id, owner_user_id, primary_therapist_id`)).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

	desc, err := resolver.Resolve(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !desc.Missing {
		t.Fatal("expected missing descriptor")
	}
}
