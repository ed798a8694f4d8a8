// Package mongostore implements the ledger store on MongoDB. Multi-document
// transactions require a replica set or sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

const (
	colAccounts     = "accounts"
	colTransactions = "transactions"
	colRequests     = "pending_requests"
	colAudit        = "audit_log"
	colCounters     = "counters"

	defaultServerSelectionTimeout = 5 * time.Second

	codeNamespaceNotFound = 26
	codeIndexNotFound     = 27
)

// Store is a MongoDB backed ledger store.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	queries *queries
}

var _ store.Store = (*Store)(nil)

// Open connects, verifies the connection and ensures the ledger indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultServerSelectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{client: client, db: db, queries: &queries{db: db}}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "mobile", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "role", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "from_mobile", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "to_mobile", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "from_mobile", Value: 1}, {Key: "reference_id", Value: 1}}, Options: uniqueWhenSet("reference_id")},
			{Keys: bson.D{{Key: "request_id", Value: 1}}, Options: uniqueWhenSet("request_id")},
		},
		colRequests: {
			{Keys: bson.D{{Key: "requester", Value: 1}}},
			{Keys: bson.D{{Key: "agent", Value: 1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}}},
		},
	}

	// Transfer references used to be unique across senders.
	if err := s.dropIndex(ctx, colTransactions, "reference_id_1"); err != nil {
		return err
	}

	var errs []error
	for collection, models := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			zap.L().Warn("failed to create mongo indexes", zap.String("collection", collection), zap.Error(err))
			errs = append(errs, fmt.Errorf("ensure indexes on %s: %w", collection, err))
		}
	}
	return errors.Join(errs...)
}

// dropIndex removes an index by name. A missing index or collection is not an
// error.
func (s *Store) dropIndex(ctx context.Context, collection, name string) error {
	_, err := s.db.Collection(collection).Indexes().DropOne(ctx, name)
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.HasErrorCode(codeNamespaceNotFound) || cmdErr.HasErrorCode(codeIndexNotFound)) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("drop index %s on %s: %w", name, collection, err)
	}
	return nil
}

// uniqueWhenSet enforces uniqueness only on documents carrying the field.
func uniqueWhenSet(field string) *options.IndexOptions {
	return options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}})
}

// Queries returns the query set bound to no session.
func (s *Store) Queries() store.Tx {
	return s.queries
}

// RunInTx runs fn inside a snapshot, majority-acknowledged transaction. The
// driver retries fn on transient transaction errors.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.queries)
	}, txnOpts)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w: %w", op, store.ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
