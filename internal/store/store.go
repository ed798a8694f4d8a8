// Package store defines the persistence contract the ledger services run
// against. Backends live in internal/repository (Postgres),
// internal/store/mongostore and internal/store/memstore.
package store

import (
	"context"
	"errors"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInsufficientFunds = errors.New("balance would become negative")
)

// AccountFilter narrows ListAccounts. Zero values match everything.
type AccountFilter struct {
	Status domain.Status
	Role   domain.Role
	Limit  int32
	Offset int32
}

// TransactionFilter narrows ListTransactions. An empty Participant lists the
// whole log.
type TransactionFilter struct {
	Participant string
	Limit       int32
	Offset      int32
}

// RequestFilter narrows ListPendingRequests.
type RequestFilter struct {
	Requester string
	Agent     string
	Kind      domain.RequestKind
	Limit     int32
	Offset    int32
}

// Tx is the set of operations available inside, and outside, a store
// transaction. Implementations return ErrNotFound for missing records,
// ErrDuplicate for unique key violations and ErrInsufficientFunds when a
// balance adjustment would drive a balance negative.
type Tx interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByMobile(ctx context.Context, mobile string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// LockAccounts takes exclusive ownership of the named accounts for the rest
	// of the transaction, acquiring them in lexical mobile order. Accounts
	// that do not exist are absent from the result.
	LockAccounts(ctx context.Context, mobiles ...string) (map[string]*models.Account, error)
	// AdjustBalance adds delta to the balance and returns the new balance.
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	UpdateAccountState(ctx context.Context, accountID uuid.UUID, role domain.Role, status domain.Status) error
	// FundAccount credits a starting balance once. It reports false when the
	// account had already been funded.
	FundAccount(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]models.Account, error)

	// InsertTransaction appends to the log and fills Seq and CreatedAt.
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	// GetTransactionByReference finds a transfer by its sender scoped
	// reference. References are unique per sender, not globally.
	GetTransactionByReference(ctx context.Context, sender, referenceID string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)

	InsertPendingRequest(ctx context.Context, req *models.PendingRequest) error
	GetPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error)
	// LockPendingRequest reads a request and holds it until the transaction ends.
	LockPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error)
	DeletePendingRequest(ctx context.Context, id uuid.UUID) error
	ListPendingRequests(ctx context.Context, filter RequestFilter) ([]models.PendingRequest, error)

	InsertAuditLog(ctx context.Context, entry models.AuditEntry) error

	CountNegativeBalances(ctx context.Context) (int64, error)
	CountDuplicateRequestEntries(ctx context.Context) (int64, error)
	CountOrphanPendingRequests(ctx context.Context) (int64, error)
	CountPendingRequests(ctx context.Context) (map[domain.RequestKind]int64, error)
}

// Store scopes work into transactions. Every multi-record ledger mutation
// runs inside a single RunInTx call; fn may be invoked more than once when
// the backend retries transient conflicts.
type Store interface {
	Queries() Tx
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Page clamps list paging parameters.
func Page(limit, offset int32) (int32, int32) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
