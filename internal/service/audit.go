package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
)

// Audit entity types.
const (
	auditEntityAccount = "account"
	auditEntityRequest = "request"
)

// AuditService writes immutable audit trail entries.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single audit record through tx, so it commits or rolls back
// with the change it describes.
func (s *AuditService) Write(ctx context.Context, tx store.Tx, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata interface{}) error {
	var raw json.RawMessage
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		raw = b
	}

	if err := tx.InsertAuditLog(ctx, models.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  prevState,
		NextState:  nextState,
		Metadata:   raw,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
