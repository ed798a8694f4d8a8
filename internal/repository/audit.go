package repository

import (
	"context"

	"github.com/ayo6706/mfs-ledger/internal/models"
)

const insertAuditLog = `
INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
`

func (q *Queries) InsertAuditLog(ctx context.Context, entry models.AuditEntry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		metadata = entry.Metadata
	}
	_, err := q.db.Exec(ctx, insertAuditLog,
		entry.EntityType,
		entry.EntityID,
		entry.ActorID,
		entry.Action,
		entry.PrevState,
		entry.NextState,
		metadata,
	)
	return mapErr("insert audit log", err)
}
