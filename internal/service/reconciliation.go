package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"go.uber.org/zap"
)

// ReconciliationReport is the outcome of one reconciliation pass.
type ReconciliationReport struct {
	NegativeBalances        int64
	DuplicateRequestEntries int64
	OrphanPendingRequests   int64
	Pending                 map[domain.RequestKind]int64
}

// Healthy reports whether no invariant violation was found.
func (r ReconciliationReport) Healthy() bool {
	return r.NegativeBalances == 0 && r.DuplicateRequestEntries == 0 && r.OrphanPendingRequests == 0
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store store.Store
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(s store.Store) *ReconciliationService {
	return &ReconciliationService{store: s}
}

// Run counts invariant violations, exports them as metrics and refreshes the
// pending request gauge.
func (s *ReconciliationService) Run(ctx context.Context) (ReconciliationReport, error) {
	q := s.store.Queries()
	var report ReconciliationReport
	var err error

	if report.NegativeBalances, err = q.CountNegativeBalances(ctx); err != nil {
		return report, fmt.Errorf("count negative balances: %w", err)
	}
	if report.DuplicateRequestEntries, err = q.CountDuplicateRequestEntries(ctx); err != nil {
		return report, fmt.Errorf("count duplicate request entries: %w", err)
	}
	if report.OrphanPendingRequests, err = q.CountOrphanPendingRequests(ctx); err != nil {
		return report, fmt.Errorf("count orphan pending requests: %w", err)
	}
	if report.Pending, err = q.CountPendingRequests(ctx); err != nil {
		return report, fmt.Errorf("count pending requests: %w", err)
	}

	for kind, n := range report.Pending {
		observability.SetPendingRequests(string(kind), n)
	}

	if !report.Healthy() {
		observability.AddInvariantViolations("negative_balance", report.NegativeBalances)
		observability.AddInvariantViolations("duplicate_request_entry", report.DuplicateRequestEntries)
		observability.AddInvariantViolations("orphan_pending_request", report.OrphanPendingRequests)
		zap.L().Error("CRITICAL: ledger invariant violation detected",
			zap.Int64("negative_balances", report.NegativeBalances),
			zap.Int64("duplicate_request_entries", report.DuplicateRequestEntries),
			zap.Int64("orphan_pending_requests", report.OrphanPendingRequests),
		)
		return report, nil
	}

	zap.L().Info("Ledger reconciled",
		zap.Int64("pending_cash_in", report.Pending[domain.KindCashIn]),
		zap.Int64("pending_cash_out", report.Pending[domain.KindCashOut]),
	)
	return report, nil
}
