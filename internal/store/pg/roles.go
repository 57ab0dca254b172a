package pg

import (
	"context"
	"database/sql"

	"careportal.org/internal/auth"
)

type roleStore struct {
	db *sql.DB
}

var _ auth.RoleStore = (*roleStore)(nil)

func (s *roleStore) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role
		from user_roles
		where user_id = $1
		order by role
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(raw)
		if err != nil {
			// A stored role outside the closed set means a bad migration;
			// fail the lookup rather than silently drop it.
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *roleStore) Assign(ctx context.Context, userID string, role auth.Role) error {
	if !role.IsValid() {
		return auth.ErrInvalidInput
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role)
		values ($1, $2)
		on conflict (user_id, role) do nothing
	`, userID, string(role)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *roleStore) Remove(ctx context.Context, userID string, role auth.Role) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role = $2
	`, userID, string(role))
	return err
}
