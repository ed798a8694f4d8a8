package repository

import (
	"context"

	"github.com/ayo6706/mfs-ledger/internal/domain"
)

const countNegativeBalances = `SELECT COUNT(*) FROM accounts WHERE balance < 0`

func (q *Queries) CountNegativeBalances(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countNegativeBalances).Scan(&n)
	return n, mapErr("count negative balances", err)
}

const countDuplicateRequestEntries = `
SELECT COUNT(*) FROM (
    SELECT request_id
    FROM transactions
    WHERE request_id IS NOT NULL
    GROUP BY request_id
    HAVING COUNT(*) > 1
) dup
`

func (q *Queries) CountDuplicateRequestEntries(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countDuplicateRequestEntries).Scan(&n)
	return n, mapErr("count duplicate request entries", err)
}

const countOrphanPendingRequests = `
SELECT COUNT(*)
FROM pending_requests p
LEFT JOIN accounts r ON r.mobile = p.requester
LEFT JOIN accounts a ON a.mobile = p.agent
WHERE r.id IS NULL OR a.id IS NULL
`

func (q *Queries) CountOrphanPendingRequests(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrphanPendingRequests).Scan(&n)
	return n, mapErr("count orphan pending requests", err)
}

const countPendingRequests = `SELECT kind, COUNT(*) FROM pending_requests GROUP BY kind`

func (q *Queries) CountPendingRequests(ctx context.Context) (map[domain.RequestKind]int64, error) {
	rows, err := q.db.Query(ctx, countPendingRequests)
	if err != nil {
		return nil, mapErr("count pending requests", err)
	}
	defer rows.Close()

	out := map[domain.RequestKind]int64{domain.KindCashIn: 0, domain.KindCashOut: 0}
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, mapErr("scan pending request count", err)
		}
		out[domain.RequestKind(kind)] = n
	}
	return out, mapErr("count pending requests", rows.Err())
}
