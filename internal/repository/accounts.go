package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, name, email, mobile, pin_hash, role, applied_role, status, balance, funded_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var role, appliedRole, status string
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.Mobile,
		&a.PINHash,
		&role,
		&appliedRole,
		&status,
		&a.Balance,
		&a.FundedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.AppliedRole = domain.Role(appliedRole)
	a.Status = domain.Status(status)
	return &a, nil
}

const createAccount = `
INSERT INTO accounts (id, name, email, mobile, pin_hash, role, applied_role, status, balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at
`

func (q *Queries) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, createAccount,
		account.ID,
		account.Name,
		account.Email,
		account.Mobile,
		account.PINHash,
		string(account.Role),
		string(account.AppliedRole),
		string(account.Status),
		account.Balance,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	return mapErr("create account", err)
}

const getAccountByMobile = `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1`

func (q *Queries) GetAccountByMobile(ctx context.Context, mobile string) (*models.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, getAccountByMobile, mobile))
	if err != nil {
		return nil, mapErr("get account by mobile", err)
	}
	return a, nil
}

const getAccountByEmail = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, getAccountByEmail, email))
	if err != nil {
		return nil, mapErr("get account by email", err)
	}
	return a, nil
}

const lockAccountByMobile = `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1 FOR UPDATE`

// LockAccounts row-locks accounts one at a time in sorted order so that two
// transactions touching the same pair always queue instead of deadlocking.
func (q *Queries) LockAccounts(ctx context.Context, mobiles ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), mobiles...)
	sort.Strings(sorted)

	out := make(map[string]*models.Account, len(sorted))
	for _, m := range sorted {
		if _, seen := out[m]; seen {
			continue
		}
		a, err := scanAccount(q.db.QueryRow(ctx, lockAccountByMobile, m))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, mapErr(fmt.Sprintf("lock account %s", m), err)
		}
		out[m] = a
	}
	return out, nil
}

const adjustBalance = `
UPDATE accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1 AND balance + $2 >= 0
RETURNING balance
`

const accountExists = `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`

func (q *Queries) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, adjustBalance, accountID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, mapErr("adjust balance", err)
	}

	var exists bool
	if err := q.db.QueryRow(ctx, accountExists, accountID).Scan(&exists); err != nil {
		return 0, mapErr("adjust balance", err)
	}
	if !exists {
		return 0, fmt.Errorf("adjust balance: %w", store.ErrNotFound)
	}
	return 0, fmt.Errorf("adjust balance: %w", store.ErrInsufficientFunds)
}

const updateAccountState = `
UPDATE accounts
SET role = $2, status = $3, updated_at = NOW()
WHERE id = $1
`

func (q *Queries) UpdateAccountState(ctx context.Context, accountID uuid.UUID, role domain.Role, status domain.Status) error {
	tag, err := q.db.Exec(ctx, updateAccountState, accountID, string(role), string(status))
	if err != nil {
		return mapErr("update account state", err)
	}
	return requireExactlyOne(tag, "update account state")
}

const fundAccount = `
UPDATE accounts
SET balance = balance + $2, funded_at = NOW(), updated_at = NOW()
WHERE id = $1 AND funded_at IS NULL
`

func (q *Queries) FundAccount(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	tag, err := q.db.Exec(ctx, fundAccount, accountID, amount)
	if err != nil {
		return false, mapErr("fund account", err)
	}
	return tag.RowsAffected() == 1, nil
}

const listAccounts = `
SELECT ` + accountColumns + `
FROM accounts
WHERE ($1::text = '' OR status = $1)
  AND ($2::text = '' OR role = $2)
ORDER BY created_at, mobile
LIMIT $3 OFFSET $4
`

func (q *Queries) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]models.Account, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	rows, err := q.db.Query(ctx, listAccounts, string(filter.Status), string(filter.Role), limit, offset)
	if err != nil {
		return nil, mapErr("list accounts", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapErr("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list accounts", err)
	}
	return accounts, nil
}
