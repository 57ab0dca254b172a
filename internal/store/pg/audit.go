package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"careportal.org/internal/auth"
	"careportal.org/internal/ids"
)

type auditStore struct {
	db *sql.DB
}

var _ auth.AuditStore = (*auditStore)(nil)

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	metaJSON := []byte("{}")
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metaJSON = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor_user_id, actor_org_id, event, resource_kind, resource_id, metadata, request_id)
		values ($1, $2, nullif($3, ''), nullif($4, ''), $5, nullif($6, ''), nullif($7, ''), $8, nullif($9, ''))
	`, entry.ID, entry.OccurredAt, entry.ActorUserID, entry.ActorOrgID, entry.Event, entry.ResourceKind, entry.ResourceID, metaJSON, entry.RequestID)
	return err
}
