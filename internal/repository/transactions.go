package repository

import (
	"context"

	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, seq, kind, from_mobile, to_mobile, amount, fee, request_id, COALESCE(reference_id, ''), created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.Seq,
		&t.Kind,
		&t.From,
		&t.To,
		&t.Amount,
		&t.Fee,
		&t.RequestID,
		&t.ReferenceID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const insertTransaction = `
INSERT INTO transactions (id, kind, from_mobile, to_mobile, amount, fee, request_id, reference_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
RETURNING seq, created_at
`

func (q *Queries) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, insertTransaction,
		txn.ID,
		txn.Kind,
		txn.From,
		txn.To,
		txn.Amount,
		txn.Fee,
		txn.RequestID,
		txn.ReferenceID,
	).Scan(&txn.Seq, &txn.CreatedAt)
	return mapErr("insert transaction", err)
}

const getTransactionByReference = `SELECT ` + transactionColumns + ` FROM transactions WHERE from_mobile = $1 AND reference_id = $2`

func (q *Queries) GetTransactionByReference(ctx context.Context, sender, referenceID string) (*models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, getTransactionByReference, sender, referenceID))
	if err != nil {
		return nil, mapErr("get transaction by reference", err)
	}
	return t, nil
}

const listTransactions = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE ($1::text = '' OR from_mobile = $1 OR to_mobile = $1)
ORDER BY seq
LIMIT $2 OFFSET $3
`

func (q *Queries) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	rows, err := q.db.Query(ctx, listTransactions, filter.Participant, limit, offset)
	if err != nil {
		return nil, mapErr("list transactions", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapErr("scan transaction", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list transactions", err)
	}
	return txns, nil
}
