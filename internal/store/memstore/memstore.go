// Package memstore is an in-process store used for local development and
// tests. Transactions are serialized behind a single mutex and run against a
// copy of the state that replaces the live state only on success.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
)

type state struct {
	accounts     map[uuid.UUID]*models.Account
	byMobile     map[string]uuid.UUID
	byEmail      map[string]uuid.UUID
	transactions []models.Transaction
	requests     map[uuid.UUID]*models.PendingRequest
	audit        []models.AuditEntry
	seq          int64
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]*models.Account),
		byMobile: make(map[string]uuid.UUID),
		byEmail:  make(map[string]uuid.UUID),
		requests: make(map[uuid.UUID]*models.PendingRequest),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[uuid.UUID]*models.Account, len(s.accounts)),
		byMobile:     make(map[string]uuid.UUID, len(s.byMobile)),
		byEmail:      make(map[string]uuid.UUID, len(s.byEmail)),
		transactions: append([]models.Transaction(nil), s.transactions...),
		requests:     make(map[uuid.UUID]*models.PendingRequest, len(s.requests)),
		audit:        append([]models.AuditEntry(nil), s.audit...),
		seq:          s.seq,
	}
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for k, v := range s.byMobile {
		c.byMobile[k] = v
	}
	for k, v := range s.byEmail {
		c.byEmail[k] = v
	}
	for id, r := range s.requests {
		cp := *r
		c.requests[id] = &cp
	}
	return c
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	if a.FundedAt != nil {
		t := *a.FundedAt
		cp.FundedAt = &t
	}
	return &cp
}

// Store keeps the whole ledger in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// Queries returns a query set where every call is its own transaction.
func (s *Store) Queries() store.Tx {
	return &tx{store: s}
}

// RunInTx executes fn against a private copy of the state and publishes the
// copy only when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// AuditLog returns a copy of the audit trail.
func (s *Store) AuditLog() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.st.audit...)
}

// tx either holds a working copy (inside RunInTx) or a back reference to the
// store, in which case each call locks the live state.
type tx struct {
	st    *state
	now   func() time.Time
	store *Store
}

func (t *tx) with(fn func(st *state, now time.Time) error) error {
	if t.store != nil {
		t.store.mu.Lock()
		defer t.store.mu.Unlock()
		return fn(t.store.st, t.store.now().UTC())
	}
	return fn(t.st, t.now().UTC())
}

func (t *tx) CreateAccount(_ context.Context, account *models.Account) error {
	return t.with(func(st *state, now time.Time) error {
		if _, ok := st.byEmail[account.Email]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.byMobile[account.Mobile]; ok {
			return store.ErrDuplicate
		}
		if account.ID == uuid.Nil {
			account.ID = uuid.New()
		}
		account.CreatedAt = now
		account.UpdatedAt = now
		st.accounts[account.ID] = copyAccount(account)
		st.byEmail[account.Email] = account.ID
		st.byMobile[account.Mobile] = account.ID
		return nil
	})
}

func (t *tx) GetAccountByMobile(_ context.Context, mobile string) (*models.Account, error) {
	var out *models.Account
	err := t.with(func(st *state, _ time.Time) error {
		id, ok := st.byMobile[mobile]
		if !ok {
			return store.ErrNotFound
		}
		out = copyAccount(st.accounts[id])
		return nil
	})
	return out, err
}

func (t *tx) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	var out *models.Account
	err := t.with(func(st *state, _ time.Time) error {
		id, ok := st.byEmail[email]
		if !ok {
			return store.ErrNotFound
		}
		out = copyAccount(st.accounts[id])
		return nil
	})
	return out, err
}

// LockAccounts has nothing to lock beyond the store mutex already held by
// RunInTx; it reads the accounts in the same order other backends lock them.
func (t *tx) LockAccounts(_ context.Context, mobiles ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), mobiles...)
	sort.Strings(sorted)
	out := make(map[string]*models.Account, len(sorted))
	err := t.with(func(st *state, _ time.Time) error {
		for _, m := range sorted {
			if id, ok := st.byMobile[m]; ok {
				out[m] = copyAccount(st.accounts[id])
			}
		}
		return nil
	})
	return out, err
}

func (t *tx) AdjustBalance(_ context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := t.with(func(st *state, now time.Time) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return store.ErrNotFound
		}
		if a.Balance+delta < 0 {
			return store.ErrInsufficientFunds
		}
		a.Balance += delta
		a.UpdatedAt = now
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (t *tx) UpdateAccountState(_ context.Context, accountID uuid.UUID, role domain.Role, status domain.Status) error {
	return t.with(func(st *state, now time.Time) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return store.ErrNotFound
		}
		a.Role = role
		a.Status = status
		a.UpdatedAt = now
		return nil
	})
}

func (t *tx) FundAccount(_ context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	var funded bool
	err := t.with(func(st *state, now time.Time) error {
		a, ok := st.accounts[accountID]
		if !ok {
			return store.ErrNotFound
		}
		if a.FundedAt != nil {
			return nil
		}
		a.Balance += amount
		a.FundedAt = &now
		a.UpdatedAt = now
		funded = true
		return nil
	})
	return funded, err
}

func (t *tx) ListAccounts(_ context.Context, filter store.AccountFilter) ([]models.Account, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	var out []models.Account
	err := t.with(func(st *state, _ time.Time) error {
		all := make([]models.Account, 0, len(st.accounts))
		for _, a := range st.accounts {
			if filter.Status != "" && a.Status != filter.Status {
				continue
			}
			if filter.Role != "" && a.Role != filter.Role {
				continue
			}
			all = append(all, *copyAccount(a))
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].Mobile < all[j].Mobile
			}
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		})
		out = window(all, limit, offset)
		return nil
	})
	return out, err
}

func (t *tx) InsertTransaction(_ context.Context, txn *models.Transaction) error {
	return t.with(func(st *state, now time.Time) error {
		for _, existing := range st.transactions {
			if txn.ReferenceID != "" && existing.From == txn.From && existing.ReferenceID == txn.ReferenceID {
				return store.ErrDuplicate
			}
			if txn.RequestID != nil && existing.RequestID != nil && *existing.RequestID == *txn.RequestID {
				return store.ErrDuplicate
			}
		}
		if txn.ID == uuid.Nil {
			txn.ID = uuid.New()
		}
		st.seq++
		txn.Seq = st.seq
		txn.CreatedAt = now
		st.transactions = append(st.transactions, *txn)
		return nil
	})
}

func (t *tx) GetTransactionByReference(_ context.Context, sender, referenceID string) (*models.Transaction, error) {
	var out *models.Transaction
	err := t.with(func(st *state, _ time.Time) error {
		for i := range st.transactions {
			if st.transactions[i].From == sender && st.transactions[i].ReferenceID == referenceID {
				cp := st.transactions[i]
				out = &cp
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (t *tx) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	var out []models.Transaction
	err := t.with(func(st *state, _ time.Time) error {
		var matched []models.Transaction
		for _, txn := range st.transactions {
			if filter.Participant != "" && txn.From != filter.Participant && txn.To != filter.Participant {
				continue
			}
			matched = append(matched, txn)
		}
		out = window(matched, limit, offset)
		return nil
	})
	return out, err
}

func (t *tx) InsertPendingRequest(_ context.Context, req *models.PendingRequest) error {
	return t.with(func(st *state, now time.Time) error {
		if req.ID == uuid.Nil {
			req.ID = uuid.New()
		}
		if _, ok := st.requests[req.ID]; ok {
			return store.ErrDuplicate
		}
		req.CreatedAt = now
		cp := *req
		st.requests[req.ID] = &cp
		return nil
	})
}

func (t *tx) GetPendingRequest(_ context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	var out *models.PendingRequest
	err := t.with(func(st *state, _ time.Time) error {
		r, ok := st.requests[id]
		if !ok {
			return store.ErrNotFound
		}
		cp := *r
		out = &cp
		return nil
	})
	return out, err
}

func (t *tx) LockPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	return t.GetPendingRequest(ctx, id)
}

func (t *tx) DeletePendingRequest(_ context.Context, id uuid.UUID) error {
	return t.with(func(st *state, _ time.Time) error {
		if _, ok := st.requests[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.requests, id)
		return nil
	})
}

func (t *tx) ListPendingRequests(_ context.Context, filter store.RequestFilter) ([]models.PendingRequest, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	var out []models.PendingRequest
	err := t.with(func(st *state, _ time.Time) error {
		all := make([]models.PendingRequest, 0, len(st.requests))
		for _, r := range st.requests {
			if filter.Requester != "" && r.Requester != filter.Requester {
				continue
			}
			if filter.Agent != "" && r.Agent != filter.Agent {
				continue
			}
			if filter.Kind != "" && r.Kind != filter.Kind {
				continue
			}
			all = append(all, *r)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].ID.String() < all[j].ID.String()
			}
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		})
		out = window(all, limit, offset)
		return nil
	})
	return out, err
}

func (t *tx) InsertAuditLog(_ context.Context, entry models.AuditEntry) error {
	return t.with(func(st *state, now time.Time) error {
		entry.CreatedAt = now
		st.audit = append(st.audit, entry)
		return nil
	})
}

func (t *tx) CountNegativeBalances(_ context.Context) (int64, error) {
	var n int64
	err := t.with(func(st *state, _ time.Time) error {
		for _, a := range st.accounts {
			if a.Balance < 0 {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (t *tx) CountDuplicateRequestEntries(_ context.Context) (int64, error) {
	var n int64
	err := t.with(func(st *state, _ time.Time) error {
		seen := make(map[uuid.UUID]int)
		for _, txn := range st.transactions {
			if txn.RequestID != nil {
				seen[*txn.RequestID]++
			}
		}
		for _, c := range seen {
			if c > 1 {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (t *tx) CountOrphanPendingRequests(_ context.Context) (int64, error) {
	var n int64
	err := t.with(func(st *state, _ time.Time) error {
		for _, r := range st.requests {
			_, okRequester := st.byMobile[r.Requester]
			_, okAgent := st.byMobile[r.Agent]
			if !okRequester || !okAgent {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (t *tx) CountPendingRequests(_ context.Context) (map[domain.RequestKind]int64, error) {
	out := map[domain.RequestKind]int64{domain.KindCashIn: 0, domain.KindCashOut: 0}
	err := t.with(func(st *state, _ time.Time) error {
		for _, r := range st.requests {
			out[r.Kind]++
		}
		return nil
	})
	return out, err
}

func window[T any](items []T, limit, offset int32) []T {
	if int(offset) >= len(items) {
		return []T{}
	}
	end := int(offset) + int(limit)
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
