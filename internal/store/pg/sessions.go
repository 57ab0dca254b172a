package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"careportal.org/internal/auth"
	"careportal.org/internal/ids"
)

type refreshStore struct {
	db *sql.DB
}

var _ auth.RefreshTokenStore = (*refreshStore)(nil)

const refreshColumns = `id, user_id, token_hash, issued_at, expires_at, client_ip, user_agent, revoked_at, consumed`

func scanRefresh(row *sql.Row) (*auth.RefreshToken, error) {
	var (
		tok       auth.RefreshToken
		ip, agent sql.NullString
		revoked   sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.IssuedAt, &tok.ExpiresAt, &ip, &agent, &revoked, &tok.Consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	tok.ClientIP = ip.String
	tok.UserAgent = agent.String
	if revoked.Valid {
		t := revoked.Time
		tok.RevokedAt = &t
	}
	return &tok, nil
}

func (s *refreshStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, issued_at, expires_at, client_ip, user_agent)
		values ($1, $2, $3, $4, $5, nullif($6, ''), nullif($7, ''))
	`, tok.ID, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt, tok.ClientIP, tok.UserAgent)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *refreshStore) FindByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	return scanRefresh(s.db.QueryRowContext(ctx, `
		select `+refreshColumns+`
		from refresh_tokens
		where token_hash = $1
	`, hash))
}

// Consume spends an active record. The conditional update is the single-winner
// guarantee: of N concurrent rotations of the same token, exactly one update
// matches; everyone else falls through to the classifying lookup.
func (s *refreshStore) Consume(ctx context.Context, hash string, now time.Time) (*auth.RefreshToken, error) {
	tok, err := scanRefresh(s.db.QueryRowContext(ctx, `
		update refresh_tokens
		set consumed = true, revoked_at = $2
		where token_hash = $1
		  and not consumed
		  and revoked_at is null
		  and expires_at > $2
		returning `+refreshColumns+`
	`, hash, now))
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, auth.ErrTokenNotFound) {
		return nil, err
	}

	// Nothing was spent; tell a replayed token apart from an unknown one.
	existing, ferr := s.FindByHash(ctx, hash)
	if ferr != nil {
		return nil, ferr
	}
	if existing.Consumed {
		return nil, auth.ErrTokenAlreadyUsed
	}
	return nil, auth.ErrTokenNotFound
}

func (s *refreshStore) Revoke(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from refresh_tokens
		where token_hash = $1
	`, hash)
	return err
}

func (s *refreshStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from refresh_tokens
		where user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}

func (s *refreshStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from refresh_tokens
		where expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}
