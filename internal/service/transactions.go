package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
)

// TransactionService reads the append-only transaction log.
type TransactionService struct {
	store store.Store
}

func NewTransactionService(s store.Store) *TransactionService {
	return &TransactionService{store: s}
}

// List returns log entries in insertion order. An empty participant lists
// every entry.
func (s *TransactionService) List(ctx context.Context, participant string, limit, offset int32) ([]models.Transaction, error) {
	txns, err := s.store.Queries().ListTransactions(ctx, store.TransactionFilter{
		Participant: participant,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}
