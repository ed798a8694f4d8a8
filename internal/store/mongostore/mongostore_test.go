package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to MONGO_URI, which must point at a replica set.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("Skipping integration test: MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "ledger_test_" + uuid.NewString()[:8]
	s, err := Open(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func newAccount(mobile string) *models.Account {
	return &models.Account{
		Name:        "acct " + mobile,
		Email:       mobile + "@example.com",
		Mobile:      mobile,
		PINHash:     "hash",
		Role:        domain.RolePending,
		AppliedRole: domain.RoleAgent,
		Status:      domain.StatusPending,
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	acct := newAccount("01900000001")
	require.NoError(t, q.CreateAccount(ctx, acct))

	got, err := q.GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, domain.RoleAgent, got.AppliedRole)

	dup := newAccount("01900000001")
	dup.Email = "x@example.com"
	assert.ErrorIs(t, q.CreateAccount(ctx, dup), store.ErrDuplicate)

	funded, err := q.FundAccount(ctx, acct.ID, 10000)
	require.NoError(t, err)
	assert.True(t, funded)
	funded, err = q.FundAccount(ctx, acct.ID, 10000)
	require.NoError(t, err)
	assert.False(t, funded)

	_, err = q.AdjustBalance(ctx, acct.ID, -10001)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
}

func TestRunInTxAbortsOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acct := newAccount("01900000002")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockAccounts(ctx, acct.Mobile, "missing")
		if err != nil {
			return err
		}
		require.Len(t, locked, 1)
		if _, err := tx.AdjustBalance(ctx, acct.ID, 50); err != nil {
			return err
		}
		return store.ErrNotFound
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Queries().GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestTransactionSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "a", To: "b", Amount: 1}))
	}
	txns, err := q.ListTransactions(ctx, store.TransactionFilter{Participant: "a"})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{txns[0].Seq, txns[1].Seq, txns[2].Seq})

	dups, err := q.CountDuplicateRequestEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), dups)
}

func TestTransferReferenceUniquePerSender(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "a", To: "c", Amount: 1, ReferenceID: "1"}))
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "b", To: "c", Amount: 2, ReferenceID: "1"}))

	err := q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "a", To: "d", Amount: 3, ReferenceID: "1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	got, err := q.GetTransactionByReference(ctx, "b", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Amount)
}
