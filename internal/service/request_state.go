package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
)

// Pending requests only exist in the INITIATED state; both decisions are
// terminal and remove the request.
var requestTransitions = map[string]map[string]struct{}{
	domain.RequestStateInitiated: {
		domain.RequestStateApproved: {},
		domain.RequestStateDeclined: {},
	},
	domain.RequestStateApproved: {},
	domain.RequestStateDeclined: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := requestTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// closeRequest moves a locked pending request into a terminal state: it
// deletes the request and records the transition in the audit log.
func closeRequest(ctx context.Context, tx store.Tx, audit *AuditService, req *models.PendingRequest, nextState string, actorID *uuid.UUID, metadata interface{}) error {
	if !canTransition(domain.RequestStateInitiated, nextState) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, domain.RequestStateInitiated, nextState)
	}
	if err := tx.DeletePendingRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	action := "REQUEST_" + nextState
	return audit.Write(ctx, tx, auditEntityRequest, req.ID, actorID, action, domain.RequestStateInitiated, nextState, metadata)
}
