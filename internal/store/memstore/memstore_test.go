package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(mobile string) *models.Account {
	return &models.Account{
		Name:        "acct " + mobile,
		Email:       mobile + "@example.com",
		Mobile:      mobile,
		Role:        domain.RolePending,
		AppliedRole: domain.RoleUser,
		Status:      domain.StatusPending,
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	acct := newAccount("01700000001")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.AdjustBalance(ctx, acct.ID, 500); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Queries().GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestAdjustBalanceRejectsNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	acct := newAccount("01700000002")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	_, err := s.Queries().AdjustBalance(ctx, acct.ID, -1)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	_, err = s.Queries().AdjustBalance(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAccountUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Queries().CreateAccount(ctx, newAccount("01700000003")))

	dupMobile := newAccount("01700000003")
	dupMobile.Email = "other@example.com"
	assert.ErrorIs(t, s.Queries().CreateAccount(ctx, dupMobile), store.ErrDuplicate)
}

func TestFundAccountOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	acct := newAccount("01700000004")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	funded, err := s.Queries().FundAccount(ctx, acct.ID, 40)
	require.NoError(t, err)
	assert.True(t, funded)

	_, err = s.Queries().AdjustBalance(ctx, acct.ID, -40)
	require.NoError(t, err)

	funded, err = s.Queries().FundAccount(ctx, acct.ID, 40)
	require.NoError(t, err)
	assert.False(t, funded)

	got, err := s.Queries().GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
	assert.True(t, got.Funded())
}

func TestTransactionsAreSequencedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := New()
	q := s.Queries()

	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "a", To: "b", Amount: 10}))
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "b", To: "c", Amount: 5, ReferenceID: "ref-1"}))
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "c", To: "d", Amount: 1}))

	err := q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "b", To: "y", Amount: 1, ReferenceID: "ref-1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// References are scoped to the sender.
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "x", To: "y", Amount: 1, ReferenceID: "ref-1"}))

	all, err := q.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, txn := range all {
		assert.Equal(t, int64(i+1), txn.Seq)
	}

	forB, err := q.ListTransactions(ctx, store.TransactionFilter{Participant: "b"})
	require.NoError(t, err)
	assert.Len(t, forB, 2)

	byRef, err := q.GetTransactionByReference(ctx, "b", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "c", byRef.To)

	byRef, err = q.GetTransactionByReference(ctx, "x", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "y", byRef.To)

	_, err = q.GetTransactionByReference(ctx, "a", "ref-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPendingRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	q := s.Queries()

	req := &models.PendingRequest{Kind: domain.KindCashIn, Requester: "u", Agent: "ag", Amount: 200}
	require.NoError(t, q.InsertPendingRequest(ctx, req))

	counts, err := q.CountPendingRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.KindCashIn])

	orphans, err := q.CountOrphanPendingRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orphans)

	require.NoError(t, q.DeletePendingRequest(ctx, req.ID))
	assert.ErrorIs(t, q.DeletePendingRequest(ctx, req.ID), store.ErrNotFound)
}
