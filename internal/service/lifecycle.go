package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/lock"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleService performs admin driven account transitions.
type LifecycleService struct {
	deps  Deps
	audit *AuditService
}

func NewLifecycleService(deps Deps) *LifecycleService {
	return &LifecycleService{
		deps:  deps.withDefaults(),
		audit: NewAuditService(),
	}
}

// Activate grants role to an account that applied for it and seeds its
// starting balance if it was never funded before.
func (s *LifecycleService) Activate(ctx context.Context, actorID *uuid.UUID, mobile string, role domain.Role) (account *models.Account, err error) {
	defer func() { recordOutcome("activate", err) }()

	if role != domain.RoleUser && role != domain.RoleAgent {
		return nil, domain.ErrInvalidRole
	}

	var seeded int64
	err = runLocked(ctx, s.deps, []string{lock.AccountKey(mobile)}, func(ctx context.Context, tx store.Tx) error {
		current, err := s.lock(ctx, tx, mobile)
		if err != nil {
			return err
		}
		if current.AppliedRole != role {
			return domain.ErrRoleNotApplied
		}

		if err := tx.UpdateAccountState(ctx, current.ID, role, domain.StatusActive); err != nil {
			return fmt.Errorf("update account state: %w", err)
		}
		seeded = 0
		if seed := s.deps.Seeds.For(role); seed > 0 {
			funded, err := tx.FundAccount(ctx, current.ID, seed)
			if err != nil {
				return fmt.Errorf("fund account: %w", err)
			}
			if funded {
				seeded = seed
			}
		}

		if err := s.audit.Write(ctx, tx, auditEntityAccount, current.ID, actorID, "ACCOUNT_ACTIVATED", string(current.Status), string(domain.StatusActive), map[string]interface{}{
			"role":   role,
			"seeded": seeded,
		}); err != nil {
			return err
		}

		account, err = tx.GetAccountByMobile(ctx, mobile)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("account activated",
		zap.String("account_id", account.ID.String()),
		zap.String("role", string(role)),
		zap.String("seeded", domain.FormatAmount(seeded)),
	)
	publish(ctx, s.deps.Publisher, events.AccountActivated, account)
	return account, nil
}

// Block revokes every privilege of an account.
func (s *LifecycleService) Block(ctx context.Context, actorID *uuid.UUID, mobile string) (account *models.Account, err error) {
	defer func() { recordOutcome("block", err) }()

	err = runLocked(ctx, s.deps, []string{lock.AccountKey(mobile)}, func(ctx context.Context, tx store.Tx) error {
		current, err := s.lock(ctx, tx, mobile)
		if err != nil {
			return err
		}
		if err := tx.UpdateAccountState(ctx, current.ID, domain.RoleNone, domain.StatusBlocked); err != nil {
			return fmt.Errorf("update account state: %w", err)
		}
		if err := s.audit.Write(ctx, tx, auditEntityAccount, current.ID, actorID, "ACCOUNT_BLOCKED", string(current.Status), string(domain.StatusBlocked), map[string]interface{}{
			"previous_role": current.Role,
		}); err != nil {
			return err
		}

		account, err = tx.GetAccountByMobile(ctx, mobile)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("account blocked", zap.String("account_id", account.ID.String()))
	publish(ctx, s.deps.Publisher, events.AccountBlocked, account)
	return account, nil
}

func (s *LifecycleService) lock(ctx context.Context, tx store.Tx, mobile string) (*models.Account, error) {
	accounts, err := tx.LockAccounts(ctx, mobile)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	account, ok := accounts[mobile]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}
