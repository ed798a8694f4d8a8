package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountDoc struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	Email       string     `bson:"email"`
	Mobile      string     `bson:"mobile"`
	PINHash     string     `bson:"pin_hash"`
	Role        string     `bson:"role"`
	AppliedRole string     `bson:"applied_role"`
	Status      string     `bson:"status"`
	Balance     int64      `bson:"balance"`
	FundedAt    *time.Time `bson:"funded_at,omitempty"`
	LockVersion int64      `bson:"lock_version"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

func (d *accountDoc) model() (*models.Account, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode account id %q: %w", d.ID, err)
	}
	return &models.Account{
		ID:          id,
		Name:        d.Name,
		Email:       d.Email,
		Mobile:      d.Mobile,
		PINHash:     d.PINHash,
		Role:        domain.Role(d.Role),
		AppliedRole: domain.Role(d.AppliedRole),
		Status:      domain.Status(d.Status),
		Balance:     d.Balance,
		FundedAt:    d.FundedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type transactionDoc struct {
	ID          string    `bson:"_id"`
	Seq         int64     `bson:"seq"`
	Kind        string    `bson:"kind"`
	From        string    `bson:"from_mobile"`
	To          string    `bson:"to_mobile"`
	Amount      int64     `bson:"amount"`
	Fee         int64     `bson:"fee"`
	RequestID   string    `bson:"request_id,omitempty"`
	ReferenceID string    `bson:"reference_id,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d *transactionDoc) model() (*models.Transaction, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode transaction id %q: %w", d.ID, err)
	}
	t := &models.Transaction{
		ID:          id,
		Seq:         d.Seq,
		Kind:        d.Kind,
		From:        d.From,
		To:          d.To,
		Amount:      d.Amount,
		Fee:         d.Fee,
		ReferenceID: d.ReferenceID,
		CreatedAt:   d.CreatedAt,
	}
	if d.RequestID != "" {
		reqID, err := uuid.Parse(d.RequestID)
		if err != nil {
			return nil, fmt.Errorf("decode request id %q: %w", d.RequestID, err)
		}
		t.RequestID = &reqID
	}
	return t, nil
}

type requestDoc struct {
	ID          string    `bson:"_id"`
	Kind        string    `bson:"kind"`
	Requester   string    `bson:"requester"`
	Agent       string    `bson:"agent"`
	Amount      int64     `bson:"amount"`
	LockVersion int64     `bson:"lock_version"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d *requestDoc) model() (*models.PendingRequest, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode request id %q: %w", d.ID, err)
	}
	return &models.PendingRequest{
		ID:        id,
		Kind:      domain.RequestKind(d.Kind),
		Requester: d.Requester,
		Agent:     d.Agent,
		Amount:    d.Amount,
		CreatedAt: d.CreatedAt,
	}, nil
}

type auditDoc struct {
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id"`
	ActorID    string    `bson:"actor_id,omitempty"`
	Action     string    `bson:"action"`
	PrevState  string    `bson:"prev_state,omitempty"`
	NextState  string    `bson:"next_state,omitempty"`
	Metadata   string    `bson:"metadata,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

// queries serves both plain calls and transactional ones: inside RunInTx the
// context is the driver's session context, which enlists every operation in
// the transaction.
type queries struct {
	db *mongo.Database
}

var _ store.Tx = (*queries)(nil)

func (q *queries) col(name string) *mongo.Collection {
	return q.db.Collection(name)
}

func (q *queries) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	doc := accountDoc{
		ID:          account.ID.String(),
		Name:        account.Name,
		Email:       account.Email,
		Mobile:      account.Mobile,
		PINHash:     account.PINHash,
		Role:        string(account.Role),
		AppliedRole: string(account.AppliedRole),
		Status:      string(account.Status),
		Balance:     account.Balance,
		FundedAt:    account.FundedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := q.col(colAccounts).InsertOne(ctx, doc)
	return mapErr("create account", err)
}

func (q *queries) findAccount(ctx context.Context, op string, filter bson.M) (*models.Account, error) {
	var doc accountDoc
	if err := q.col(colAccounts).FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(op, err)
	}
	return doc.model()
}

func (q *queries) GetAccountByMobile(ctx context.Context, mobile string) (*models.Account, error) {
	return q.findAccount(ctx, "get account by mobile", bson.M{"mobile": mobile})
}

func (q *queries) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return q.findAccount(ctx, "get account by email", bson.M{"email": email})
}

// LockAccounts writes to each account's lock_version in sorted order. The
// write conflict it creates is what serializes concurrent transactions on the
// same account.
func (q *queries) LockAccounts(ctx context.Context, mobiles ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), mobiles...)
	sort.Strings(sorted)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	out := make(map[string]*models.Account, len(sorted))
	for _, m := range sorted {
		if _, seen := out[m]; seen {
			continue
		}
		var doc accountDoc
		err := q.col(colAccounts).FindOneAndUpdate(ctx,
			bson.M{"mobile": m},
			bson.M{"$inc": bson.M{"lock_version": 1}},
			opts,
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, mapErr(fmt.Sprintf("lock account %s", m), err)
		}
		a, err := doc.model()
		if err != nil {
			return nil, err
		}
		out[m] = a
	}
	return out, nil
}

func (q *queries) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	filter := bson.M{"_id": accountID.String()}
	if delta < 0 {
		filter["balance"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"balance": delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	var doc accountDoc
	err := q.col(colAccounts).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.Balance, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, mapErr("adjust balance", err)
	}

	n, err := q.col(colAccounts).CountDocuments(ctx, bson.M{"_id": accountID.String()})
	if err != nil {
		return 0, mapErr("adjust balance", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("adjust balance: %w", store.ErrNotFound)
	}
	return 0, fmt.Errorf("adjust balance: %w", store.ErrInsufficientFunds)
}

func (q *queries) UpdateAccountState(ctx context.Context, accountID uuid.UUID, role domain.Role, status domain.Status) error {
	res, err := q.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID.String()},
		bson.M{"$set": bson.M{"role": string(role), "status": string(status), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return mapErr("update account state", err)
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("update account state: %w", store.ErrNotFound)
	}
	return nil
}

func (q *queries) FundAccount(ctx context.Context, accountID uuid.UUID, amount int64) (bool, error) {
	now := time.Now().UTC()
	res, err := q.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID.String(), "funded_at": bson.M{"$exists": false}},
		bson.M{
			"$inc": bson.M{"balance": amount},
			"$set": bson.M{"funded_at": now, "updated_at": now},
		},
	)
	if err != nil {
		return false, mapErr("fund account", err)
	}
	return res.ModifiedCount == 1, nil
}

func (q *queries) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]models.Account, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Role != "" {
		query["role"] = string(filter.Role)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "mobile", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	var docs []accountDoc
	if err := q.findAll(ctx, colAccounts, query, opts, &docs); err != nil {
		return nil, mapErr("list accounts", err)
	}
	out := make([]models.Account, 0, len(docs))
	for i := range docs {
		a, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (q *queries) findAll(ctx context.Context, collection string, filter bson.M, opts *options.FindOptions, into interface{}) error {
	cursor, err := q.col(collection).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, into)
}

// nextSeq allocates the next log position from the counters collection.
func (q *queries) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := q.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": colTransactions},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

func (q *queries) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	seq, err := q.nextSeq(ctx)
	if err != nil {
		return mapErr("allocate transaction seq", err)
	}
	txn.Seq = seq
	txn.CreatedAt = time.Now().UTC()

	doc := transactionDoc{
		ID:          txn.ID.String(),
		Seq:         txn.Seq,
		Kind:        txn.Kind,
		From:        txn.From,
		To:          txn.To,
		Amount:      txn.Amount,
		Fee:         txn.Fee,
		ReferenceID: txn.ReferenceID,
		CreatedAt:   txn.CreatedAt,
	}
	if txn.RequestID != nil {
		doc.RequestID = txn.RequestID.String()
	}
	_, err = q.col(colTransactions).InsertOne(ctx, doc)
	return mapErr("insert transaction", err)
}

func (q *queries) GetTransactionByReference(ctx context.Context, sender, referenceID string) (*models.Transaction, error) {
	var doc transactionDoc
	if err := q.col(colTransactions).FindOne(ctx, bson.M{"from_mobile": sender, "reference_id": referenceID}).Decode(&doc); err != nil {
		return nil, mapErr("get transaction by reference", err)
	}
	return doc.model()
}

func (q *queries) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	query := bson.M{}
	if filter.Participant != "" {
		query["$or"] = bson.A{
			bson.M{"from_mobile": filter.Participant},
			bson.M{"to_mobile": filter.Participant},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	var docs []transactionDoc
	if err := q.findAll(ctx, colTransactions, query, opts, &docs); err != nil {
		return nil, mapErr("list transactions", err)
	}
	out := make([]models.Transaction, 0, len(docs))
	for i := range docs {
		t, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (q *queries) InsertPendingRequest(ctx context.Context, req *models.PendingRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now().UTC()
	_, err := q.col(colRequests).InsertOne(ctx, requestDoc{
		ID:        req.ID.String(),
		Kind:      string(req.Kind),
		Requester: req.Requester,
		Agent:     req.Agent,
		Amount:    req.Amount,
		CreatedAt: req.CreatedAt,
	})
	return mapErr("insert pending request", err)
}

func (q *queries) GetPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	var doc requestDoc
	if err := q.col(colRequests).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, mapErr("get pending request", err)
	}
	return doc.model()
}

func (q *queries) LockPendingRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	var doc requestDoc
	err := q.col(colRequests).FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$inc": bson.M{"lock_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapErr("lock pending request", err)
	}
	return doc.model()
}

func (q *queries) DeletePendingRequest(ctx context.Context, id uuid.UUID) error {
	res, err := q.col(colRequests).DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return mapErr("delete pending request", err)
	}
	if res.DeletedCount != 1 {
		return fmt.Errorf("delete pending request: %w", store.ErrNotFound)
	}
	return nil
}

func (q *queries) ListPendingRequests(ctx context.Context, filter store.RequestFilter) ([]models.PendingRequest, error) {
	limit, offset := store.Page(filter.Limit, filter.Offset)
	query := bson.M{}
	if filter.Requester != "" {
		query["requester"] = filter.Requester
	}
	if filter.Agent != "" {
		query["agent"] = filter.Agent
	}
	if filter.Kind != "" {
		query["kind"] = string(filter.Kind)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	var docs []requestDoc
	if err := q.findAll(ctx, colRequests, query, opts, &docs); err != nil {
		return nil, mapErr("list pending requests", err)
	}
	out := make([]models.PendingRequest, 0, len(docs))
	for i := range docs {
		r, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (q *queries) InsertAuditLog(ctx context.Context, entry models.AuditEntry) error {
	doc := auditDoc{
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID.String(),
		Action:     entry.Action,
		PrevState:  entry.PrevState,
		NextState:  entry.NextState,
		Metadata:   string(entry.Metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if entry.ActorID != nil {
		doc.ActorID = entry.ActorID.String()
	}
	_, err := q.col(colAudit).InsertOne(ctx, doc)
	return mapErr("insert audit log", err)
}

func (q *queries) CountNegativeBalances(ctx context.Context) (int64, error) {
	n, err := q.col(colAccounts).CountDocuments(ctx, bson.M{"balance": bson.M{"$lt": 0}})
	return n, mapErr("count negative balances", err)
}

func (q *queries) CountDuplicateRequestEntries(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"request_id": bson.M{"$type": "string"}}}},
		{{Key: "$group", Value: bson.M{"_id": "$request_id", "n": bson.M{"$sum": 1}}}},
		{{Key: "$match", Value: bson.M{"n": bson.M{"$gt": 1}}}},
		{{Key: "$count", Value: "n"}},
	}
	n, err := q.aggregateCount(ctx, colTransactions, pipeline)
	return n, mapErr("count duplicate request entries", err)
}

func (q *queries) CountOrphanPendingRequests(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{"from": colAccounts, "localField": "requester", "foreignField": "mobile", "as": "r"}}},
		{{Key: "$lookup", Value: bson.M{"from": colAccounts, "localField": "agent", "foreignField": "mobile", "as": "a"}}},
		{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"r": bson.M{"$size": 0}}, bson.M{"a": bson.M{"$size": 0}}}}}},
		{{Key: "$count", Value: "n"}},
	}
	n, err := q.aggregateCount(ctx, colRequests, pipeline)
	return n, mapErr("count orphan pending requests", err)
}

func (q *queries) aggregateCount(ctx context.Context, collection string, pipeline mongo.Pipeline) (int64, error) {
	cursor, err := q.col(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var result struct {
		N int64 `bson:"n"`
	}
	if !cursor.Next(ctx) {
		return 0, cursor.Err()
	}
	if err := cursor.Decode(&result); err != nil {
		return 0, err
	}
	return result.N, nil
}

func (q *queries) CountPendingRequests(ctx context.Context) (map[domain.RequestKind]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$kind", "n": bson.M{"$sum": 1}}}},
	}
	cursor, err := q.col(colRequests).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapErr("count pending requests", err)
	}
	var rows []struct {
		Kind string `bson:"_id"`
		N    int64  `bson:"n"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, mapErr("count pending requests", err)
	}

	out := map[domain.RequestKind]int64{domain.KindCashIn: 0, domain.KindCashOut: 0}
	for _, r := range rows {
		out[domain.RequestKind(r.Kind)] = r.N
	}
	return out, nil
}
