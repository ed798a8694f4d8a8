package service

import (
	"context"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/lock"
	"github.com/ayo6706/mfs-ledger/internal/store"
)

// SecretVerifier checks a presented PIN against its stored verifier.
type SecretVerifier interface {
	Verify(hash, pin string) error
}

// SecretHasher derives verifiers from PINs.
type SecretHasher interface {
	SecretVerifier
	Hash(pin string) (string, error)
}

// Deps are the collaborators shared by the ledger services. Store and
// Secrets are required; the rest default to no-op implementations.
type Deps struct {
	Store     store.Store
	Secrets   SecretHasher
	Locker    lock.Locker
	Publisher events.Publisher
	Fees      domain.FeePolicy
	Seeds     domain.StartingBalances
	Decline   domain.DeclinePolicy
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = lock.NopLocker{}
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Fees == (domain.FeePolicy{}) {
		d.Fees = domain.DefaultFeePolicy()
	}
	if d.Seeds == (domain.StartingBalances{}) {
		d.Seeds = domain.DefaultStartingBalances()
	}
	if d.Decline == "" {
		d.Decline = domain.DeclineRefundAll
	}
	return d
}

// runLocked takes the distributed locks for keys and then runs fn in a store
// transaction, so the store's row locks are always taken under the same
// ordering as the distributed ones.
func runLocked(ctx context.Context, d Deps, keys []string, fn func(ctx context.Context, tx store.Tx) error) error {
	return d.Locker.WithLocks(ctx, keys, func(ctx context.Context) error {
		return d.Store.RunInTx(ctx, fn)
	})
}
