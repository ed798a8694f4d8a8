package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"go.uber.org/zap"
)

// RegisterCmd carries a new participant's details.
type RegisterCmd struct {
	Name        string
	Email       string
	Mobile      string
	PIN         string
	AppliedRole domain.Role
}

// AdminSeed describes the bootstrap admin account.
type AdminSeed struct {
	Name   string
	Email  string
	Mobile string
	PIN    string
}

type AccountService struct {
	deps  Deps
	authz *Authorizer
	audit *AuditService
}

func NewAccountService(deps Deps) *AccountService {
	deps = deps.withDefaults()
	return &AccountService{
		deps:  deps,
		authz: NewAuthorizer(deps.Secrets),
		audit: NewAuditService(),
	}
}

// Register creates a Pending account with no balance. Email uniqueness is
// checked before mobile uniqueness.
func (s *AccountService) Register(ctx context.Context, cmd RegisterCmd) (account *models.Account, err error) {
	defer func() { recordOutcome("register", err) }()

	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	cmd.Mobile = strings.TrimSpace(cmd.Mobile)
	if cmd.Email == "" || cmd.Mobile == "" || cmd.PIN == "" {
		return nil, domain.ErrInvalidRequest
	}
	if cmd.AppliedRole != domain.RoleUser && cmd.AppliedRole != domain.RoleAgent {
		return nil, domain.ErrInvalidRole
	}

	q := s.deps.Store.Queries()
	if err := s.checkAvailable(ctx, q, cmd.Email, cmd.Mobile); err != nil {
		return nil, err
	}

	hash, err := s.deps.Secrets.Hash(cmd.PIN)
	if err != nil {
		return nil, err
	}

	account = &models.Account{
		Name:        strings.TrimSpace(cmd.Name),
		Email:       cmd.Email,
		Mobile:      cmd.Mobile,
		PINHash:     hash,
		Role:        domain.RolePending,
		AppliedRole: cmd.AppliedRole,
		Status:      domain.StatusPending,
	}
	err = s.deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return s.audit.Write(ctx, tx, auditEntityAccount, account.ID, &account.ID, "ACCOUNT_REGISTERED", "", string(domain.StatusPending), map[string]interface{}{
			"applied_role": account.AppliedRole,
		})
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent registration; report which key.
		if availErr := s.checkAvailable(ctx, q, cmd.Email, cmd.Mobile); availErr != nil {
			return nil, availErr
		}
		return nil, domain.ErrMobileTaken
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("account registered",
		zap.String("account_id", account.ID.String()),
		zap.String("applied_role", string(account.AppliedRole)),
	)
	publish(ctx, s.deps.Publisher, events.AccountRegistered, account)
	return account, nil
}

func (s *AccountService) checkAvailable(ctx context.Context, q store.Tx, email, mobile string) error {
	if _, err := q.GetAccountByEmail(ctx, email); err == nil {
		return domain.ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check email: %w", err)
	}
	if _, err := q.GetAccountByMobile(ctx, mobile); err == nil {
		return domain.ErrMobileTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check mobile: %w", err)
	}
	return nil
}

// Login verifies credentials. Pending accounts may log in to observe their
// status; blocked accounts may not.
func (s *AccountService) Login(ctx context.Context, mobile, secret string) (account *models.Account, err error) {
	defer func() { recordOutcome("login", err) }()
	return s.authz.Authorize(ctx, s.deps.Store.Queries(), strings.TrimSpace(mobile), secret)
}

func (s *AccountService) GetAccount(ctx context.Context, mobile string) (*models.Account, error) {
	account, err := s.deps.Store.Queries().GetAccountByMobile(ctx, mobile)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]models.Account, error) {
	accounts, err := s.deps.Store.Queries().ListAccounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// EnsureAdmin creates the bootstrap admin once. An existing admin with the
// same mobile is left untouched.
func (s *AccountService) EnsureAdmin(ctx context.Context, seed AdminSeed) (*models.Account, error) {
	existing, err := s.deps.Store.Queries().GetAccountByMobile(ctx, seed.Mobile)
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			return nil, fmt.Errorf("bootstrap admin mobile %s belongs to a %s account", seed.Mobile, existing.Role)
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load admin: %w", err)
	}

	hash, err := s.deps.Secrets.Hash(seed.PIN)
	if err != nil {
		return nil, err
	}
	admin := &models.Account{
		Name:        seed.Name,
		Email:       strings.ToLower(strings.TrimSpace(seed.Email)),
		Mobile:      seed.Mobile,
		PINHash:     hash,
		Role:        domain.RoleAdmin,
		AppliedRole: domain.RoleAdmin,
		Status:      domain.StatusActive,
	}
	err = s.deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateAccount(ctx, admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		return s.audit.Write(ctx, tx, auditEntityAccount, admin.ID, nil, "ADMIN_BOOTSTRAPPED", "", string(domain.StatusActive), nil)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("bootstrap admin created", zap.String("account_id", admin.ID.String()))
	return admin, nil
}
