package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/ayo6706/mfs-ledger/internal/db"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/ayo6706/mfs-ledger/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}

// setupTestDB migrates the schema and empties every ledger table.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate(dbURL, zap.NewNop()))

	pool, err := db.Connect(context.Background(), dbURL, db.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), "TRUNCATE TABLE audit_log, pending_requests, transactions, accounts")
	require.NoError(t, err)
	return pool
}

func newAccount(mobile string) *models.Account {
	return &models.Account{
		Name:        "acct " + mobile,
		Email:       mobile + "@example.com",
		Mobile:      mobile,
		PINHash:     "hash",
		Role:        domain.RolePending,
		AppliedRole: domain.RoleUser,
		Status:      domain.StatusPending,
	}
}

func TestCreateAndFetchAccount(t *testing.T) {
	pool := setupTestDB(t)
	q := NewStore(pool).Queries()
	ctx := context.Background()

	acct := newAccount("01800000001")
	require.NoError(t, q.CreateAccount(ctx, acct))
	assert.NotEqual(t, uuid.Nil, acct.ID)

	got, err := q.GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, domain.RolePending, got.Role)
	assert.Nil(t, got.FundedAt)

	byEmail, err := q.GetAccountByEmail(ctx, acct.Email)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byEmail.ID)

	_, err = q.GetAccountByMobile(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	dup := newAccount("01800000001")
	dup.Email = "other@example.com"
	assert.ErrorIs(t, q.CreateAccount(ctx, dup), store.ErrDuplicate)
}

func TestAdjustBalanceGuardsNegative(t *testing.T) {
	pool := setupTestDB(t)
	s := NewStore(pool)
	ctx := context.Background()

	acct := newAccount("01800000002")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	funded, err := s.Queries().FundAccount(ctx, acct.ID, 40)
	require.NoError(t, err)
	assert.True(t, funded)

	funded, err = s.Queries().FundAccount(ctx, acct.ID, 40)
	require.NoError(t, err)
	assert.False(t, funded)

	_, err = s.Queries().AdjustBalance(ctx, acct.ID, -41)
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)

	balance, err := s.Queries().AdjustBalance(ctx, acct.ID, -40)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = s.Queries().AdjustBalance(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunInTxRollback(t *testing.T) {
	pool := setupTestDB(t)
	s := NewStore(pool)
	ctx := context.Background()

	acct := newAccount("01800000003")
	require.NoError(t, s.Queries().CreateAccount(ctx, acct))

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.AdjustBalance(ctx, acct.ID, 100); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "x", To: "y", Amount: 0})
	})
	require.Error(t, err)

	got, err := s.Queries().GetAccountByMobile(ctx, acct.Mobile)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestTransactionLogAndRequests(t *testing.T) {
	pool := setupTestDB(t)
	q := NewStore(pool).Queries()
	ctx := context.Background()

	reqID := uuid.New()
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindCashIn, From: "ag", To: "u", Amount: 200, RequestID: &reqID}))
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "u", To: "v", Amount: 150, Fee: 5, ReferenceID: "ref-1"}))

	err := q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindCashIn, From: "ag", To: "u", Amount: 1, RequestID: &reqID})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "u", To: "w", Amount: 1, ReferenceID: "ref-1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	require.NoError(t, q.InsertTransaction(ctx, &models.Transaction{Kind: domain.TxKindTransfer, From: "w", To: "v", Amount: 1, ReferenceID: "ref-1"}))

	forU, err := q.ListTransactions(ctx, store.TransactionFilter{Participant: "u"})
	require.NoError(t, err)
	require.Len(t, forU, 2)
	assert.Less(t, forU[0].Seq, forU[1].Seq)
	assert.Equal(t, int64(5), forU[1].Fee)

	byRef, err := q.GetTransactionByReference(ctx, "u", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "v", byRef.To)

	byRef, err = q.GetTransactionByReference(ctx, "w", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "v", byRef.To)

	req := &models.PendingRequest{Kind: domain.KindCashOut, Requester: "u", Agent: "ag", Amount: 10}
	require.NoError(t, q.InsertPendingRequest(ctx, req))

	counts, err := q.CountPendingRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.KindCashOut])

	orphans, err := q.CountOrphanPendingRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), orphans)

	require.NoError(t, q.DeletePendingRequest(ctx, req.ID))
	assert.ErrorIs(t, q.DeletePendingRequest(ctx, req.ID), store.ErrNotFound)
}

func TestLockAccountsConcurrentAdjust(t *testing.T) {
	pool := setupTestDB(t)
	s := NewStore(pool)
	ctx := context.Background()

	a := newAccount("01800000010")
	b := newAccount("01800000011")
	require.NoError(t, s.Queries().CreateAccount(ctx, a))
	require.NoError(t, s.Queries().CreateAccount(ctx, b))
	_, err := s.Queries().AdjustBalance(ctx, a.ID, 100)
	require.NoError(t, err)
	_, err = s.Queries().AdjustBalance(ctx, b.ID, 100)
	require.NoError(t, err)

	move := func(from, to *models.Account) error {
		return s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockAccounts(ctx, from.Mobile, to.Mobile); err != nil {
				return err
			}
			if _, err := tx.AdjustBalance(ctx, from.ID, -1); err != nil {
				return err
			}
			_, err := tx.AdjustBalance(ctx, to.ID, 1)
			return err
		})
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- move(a, b)
		}()
		go func() {
			defer wg.Done()
			errs <- move(b, a)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Queries().ListAccounts(ctx, store.AccountFilter{})
	require.NoError(t, err)
	var total int64
	for _, acct := range got {
		total += acct.Balance
	}
	assert.Equal(t, int64(200), total)
}
