package service

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/ayo6706/mfs-ledger/internal/auth/pin"
	"github.com/ayo6706/mfs-ledger/internal/db"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/repository"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/ayo6706/mfs-ledger/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPIN = "12345"

// ledger wires every service over one store.
type ledger struct {
	store     store.Store
	events    *events.Recorder
	accounts  *AccountService
	lifecycle *LifecycleService
	transfers *TransferService
	requests  *RequestService
	txns      *TransactionService
	admin     *models.Account
}

func newLedger(t *testing.T, s store.Store, decline domain.DeclinePolicy) *ledger {
	t.Helper()

	rec := &events.Recorder{}
	deps := Deps{
		Store:     s,
		Secrets:   pin.NewHasher(bcrypt.MinCost),
		Publisher: rec,
		Decline:   decline,
	}
	l := &ledger{
		store:     s,
		events:    rec,
		accounts:  NewAccountService(deps),
		lifecycle: NewLifecycleService(deps),
		transfers: NewTransferService(deps),
		requests:  NewRequestService(deps),
		txns:      NewTransactionService(s),
	}

	admin, err := l.accounts.EnsureAdmin(context.Background(), AdminSeed{
		Name:   "root",
		Email:  "admin@example.com",
		Mobile: "000",
		PIN:    testPIN,
	})
	require.NoError(t, err)
	l.admin = admin
	return l
}

func newMemLedger(t *testing.T) *ledger {
	return newLedger(t, memstore.New(), domain.DeclineRefundAll)
}

// setupTestDB connects to the local Postgres instance and empties the ledger.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate(connString, zap.NewNop()))

	pool, err := db.Connect(context.Background(), connString, db.PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), "TRUNCATE TABLE audit_log, pending_requests, transactions, accounts")
	require.NoError(t, err)
	return pool
}

func newPgLedger(t *testing.T) *ledger {
	return newLedger(t, repository.NewStore(setupTestDB(t)), domain.DeclineRefundAll)
}

func (l *ledger) adminID() *uuid.UUID {
	return &l.admin.ID
}

// register creates a Pending account that applied for role.
func (l *ledger) register(t *testing.T, mobile string, role domain.Role) *models.Account {
	t.Helper()
	acct, err := l.accounts.Register(context.Background(), RegisterCmd{
		Name:        "acct " + mobile,
		Email:       fmt.Sprintf("%s@example.com", mobile),
		Mobile:      mobile,
		PIN:         testPIN,
		AppliedRole: role,
	})
	require.NoError(t, err)
	return acct
}

// active registers and activates an account.
func (l *ledger) active(t *testing.T, mobile string, role domain.Role) *models.Account {
	t.Helper()
	l.register(t, mobile, role)
	acct, err := l.lifecycle.Activate(context.Background(), l.adminID(), mobile, role)
	require.NoError(t, err)
	return acct
}

func (l *ledger) balance(t *testing.T, mobile string) int64 {
	t.Helper()
	acct, err := l.store.Queries().GetAccountByMobile(context.Background(), mobile)
	require.NoError(t, err)
	return acct.Balance
}

func (l *ledger) pendingCount(t *testing.T) int {
	t.Helper()
	reqs, err := l.store.Queries().ListPendingRequests(context.Background(), store.RequestFilter{})
	require.NoError(t, err)
	return len(reqs)
}

func (l *ledger) logFor(t *testing.T, mobile string) []models.Transaction {
	t.Helper()
	txns, err := l.txns.List(context.Background(), mobile, 0, 0)
	require.NoError(t, err)
	return txns
}
