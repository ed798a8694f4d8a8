package service

import (
	"context"
	"testing"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationHealthyLedger(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()
	l.active(t, "u1", domain.RoleUser)
	l.active(t, "ag", domain.RoleAgent)

	_, err := l.requests.InitiateCashIn(ctx, "u1", "ag", 10)
	require.NoError(t, err)
	out, err := l.requests.InitiateCashOut(ctx, "u1", testPIN, "ag", 10)
	require.NoError(t, err)
	_, err = l.requests.Approve(ctx, l.adminID(), out.ID)
	require.NoError(t, err)

	report, err := NewReconciliationService(l.store).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, int64(1), report.Pending[domain.KindCashIn])
	assert.Equal(t, int64(0), report.Pending[domain.KindCashOut])
}

func TestReconciliationDetectsOrphanRequest(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	err := l.store.Queries().InsertPendingRequest(ctx, &models.PendingRequest{
		Kind:      domain.KindCashOut,
		Requester: "ghost",
		Agent:     "ghost-agent",
		Amount:    10,
	})
	require.NoError(t, err)

	report, err := NewReconciliationService(l.store).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Equal(t, int64(1), report.OrphanPendingRequests)
	assert.Equal(t, int64(0), report.NegativeBalances)
}
