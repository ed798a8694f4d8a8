package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"go.uber.org/zap"
)

// balanceErr maps the store's negative balance guard onto the ledger error.
func balanceErr(op string, err error) error {
	if errors.Is(err, store.ErrInsufficientFunds) {
		return fmt.Errorf("%s: %w", op, domain.ErrInsufficientBalance)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func recordOutcome(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if code, ok := domain.CodeOf(err); ok {
			result = code
		}
	}
	observability.IncrementLedgerOperation(operation, result)
}

// publish delivers an event after commit. Failures are logged only.
func publish(ctx context.Context, pub events.Publisher, eventType string, data interface{}) {
	if err := pub.Publish(context.WithoutCancel(ctx), events.New(eventType, data)); err != nil {
		observability.IncrementEventPublish(eventType, "error")
		zap.L().Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
		return
	}
	observability.IncrementEventPublish(eventType, "ok")
}
