package repository

import (
	"context"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, kind, requester, agent, amount, created_at`

func scanRequest(row pgx.Row) (*models.PendingRequest, error) {
	var (
		r    models.PendingRequest
		kind string
	)
	if err := row.Scan(&r.ID, &kind, &r.Requester, &r.Agent, &r.Amount, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Kind = domain.RequestKind(kind)
	return &r, nil
}

const insertPendingRequest = `
INSERT INTO pending_requests (id, kind, requester, agent, amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at
`

func (q *Queries) InsertPendingRequest(ctx context.Context, req *models.PendingRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, insertPendingRequest,
		req.ID,
		string(req.Kind),
		req.Requester,
		req.Agent,
		req.Amount,
	).Scan(&req.CreatedAt)
	return mapErr("insert pending request", err)
}

const getPendingRequest = `SELECT ` + requestColumns + ` FROM pending_requests WHERE id = $1`

func (q *Queries) GetPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	r, err := scanRequest(q.db.QueryRow(ctx, getPendingRequest, id))
	if err != nil {
		return nil, mapErr("get pending request", err)
	}
	return r, nil
}

const lockPendingRequest = getPendingRequest + ` FOR UPDATE`

func (q *Queries) LockPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	r, err := scanRequest(q.db.QueryRow(ctx, lockPendingRequest, id))
	if err != nil {
		return nil, mapErr("lock pending request", err)
	}
	return r, nil
}

const deletePendingRequest = `DELETE FROM pending_requests WHERE id = $1`

func (q *Queries) DeletePendingRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, deletePendingRequest, id)
	if err != nil {
		return mapErr("delete pending request", err)
	}
	return requireExactlyOne(tag, "delete pending request")
}

const listPendingRequests = `
SELECT ` + requestColumns + `
FROM pending_requests
WHERE ($1::text = '' OR requester = $1)
  AND ($2::text = '' OR agent = $2)
  AND ($3::text = '' OR kind = $3)
ORDER BY created_at, id
LIMIT $4 OFFSET $5
`

func (q *Queries) ListPendingRequests(ctx context.Context, filter store.RequestFilter) ([]models.PendingRequest, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	rows, err := q.db.Query(ctx, listPendingRequests, filter.Requester, filter.Agent, string(filter.Kind), limit, offset)
	if err != nil {
		return nil, mapErr("list pending requests", err)
	}
	defer rows.Close()

	reqs := []models.PendingRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, mapErr("scan pending request", err)
		}
		reqs = append(reqs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list pending requests", err)
	}
	return reqs, nil
}
