package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/auth/pin"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
)

// Authorizer verifies a caller's PIN and account status. It never mutates
// state.
type Authorizer struct {
	secrets SecretVerifier
}

func NewAuthorizer(secrets SecretVerifier) *Authorizer {
	return &Authorizer{secrets: secrets}
}

// Authorize resolves mobile and checks pin against the stored verifier.
// Blocked accounts are rejected; Pending accounts are returned so callers can
// decide whether they may act.
func (a *Authorizer) Authorize(ctx context.Context, q store.Tx, mobile, secret string) (*models.Account, error) {
	account, err := q.GetAccountByMobile(ctx, mobile)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := a.secrets.Verify(account.PINHash, secret); err != nil {
		if errors.Is(err, pin.ErrMismatch) {
			return nil, domain.ErrSecretMismatch
		}
		return nil, fmt.Errorf("verify pin: %w", err)
	}

	if account.Status == domain.StatusBlocked {
		return nil, domain.ErrAccountBlocked
	}
	return account, nil
}

// AuthorizeMutation additionally requires the account to be Active.
func (a *Authorizer) AuthorizeMutation(ctx context.Context, q store.Tx, mobile, secret string) (*models.Account, error) {
	account, err := a.Authorize(ctx, q, mobile, secret)
	if err != nil {
		return nil, err
	}
	if err := requireActive(account); err != nil {
		return nil, err
	}
	return account, nil
}

// requireActive re-checks status on a freshly locked row.
func requireActive(account *models.Account) error {
	switch account.Status {
	case domain.StatusActive:
		return nil
	case domain.StatusBlocked:
		return domain.ErrAccountBlocked
	default:
		return domain.ErrAccountNotActive
	}
}
