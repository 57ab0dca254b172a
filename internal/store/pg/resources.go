package pg

import (
	"context"
	"database/sql"
	"errors"

	"careportal.org/internal/auth"
)

// CaseResolver builds policy resource descriptors for assessment cases. It
// folds the case's relations into membership roles: the owning clinician is
// the owner, the primary therapist a manager, and case_members rows carry
// their stored role.
type CaseResolver struct {
	db *sql.DB
}

// NewCaseResolver wires a resolver over the store's connection.
func NewCaseResolver(store *Store) *CaseResolver {
	return &CaseResolver{db: store.DB()}
}

// Resolve fetches the case and its member set. A missing case yields a
// descriptor with Missing set, never an error: absence is a policy decision,
// not a lookup failure.
func (r *CaseResolver) Resolve(ctx context.Context, id string) (auth.ResourceDescriptor, error) {
	desc := auth.ResourceDescriptor{
		Kind: auth.KindCase,
		ID:   id,
	}

	var (
		ownerID   string
		therapist sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		select organization_id, owner_user_id, primary_therapist_id
		from cases
		where id = $1
	`, id).Scan(&desc.OrganizationID, &ownerID, &therapist)
	if errors.Is(err, sql.ErrNoRows) {
		desc.Missing = true
		return desc, nil
	}
	if err != nil {
		return auth.ResourceDescriptor{}, err
	}

	desc.Members = map[string]auth.MembershipRole{
		ownerID: auth.MemberOwner,
	}
	if therapist.Valid && therapist.String != ownerID {
		desc.Members[therapist.String] = auth.MemberManager
	}

	rows, err := r.db.QueryContext(ctx, `
		select user_id, role
		from case_members
		where case_id = $1
	`, id)
	if err != nil {
		return auth.ResourceDescriptor{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			raw    string
		)
		if err := rows.Scan(&userID, &raw); err != nil {
			return auth.ResourceDescriptor{}, err
		}
		role, err := auth.ParseMembershipRole(raw)
		if err != nil {
			return auth.ResourceDescriptor{}, err
		}
		// Explicit relations outrank case_members rows.
		if _, ok := desc.Members[userID]; !ok {
			desc.Members[userID] = role
		}
	}
	if err := rows.Err(); err != nil {
		return auth.ResourceDescriptor{}, err
	}
	return desc, nil
}
