package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/lock"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"go.uber.org/zap"
)

// TransferCmd is a direct transfer between two active accounts.
type TransferCmd struct {
	Sender      string
	PIN         string
	Recipient   string
	Amount      int64
	ReferenceID string
}

type TransferService struct {
	deps  Deps
	authz *Authorizer
}

func NewTransferService(deps Deps) *TransferService {
	deps = deps.withDefaults()
	return &TransferService{
		deps:  deps,
		authz: NewAuthorizer(deps.Secrets),
	}
}

// Transfer debits the sender amount plus fee, credits the recipient amount
// and appends the transaction, all in one store transaction. The fee is not
// credited anywhere. A repeated ReferenceID returns the original transaction.
func (s *TransferService) Transfer(ctx context.Context, cmd TransferCmd) (txn *models.Transaction, err error) {
	defer func() { recordOutcome("transfer", err) }()

	if cmd.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	// PIN verification is slow by construction, so it happens before any lock
	// is held; status is re-checked on the locked row.
	if _, err := s.authz.AuthorizeMutation(ctx, s.deps.Store.Queries(), cmd.Sender, cmd.PIN); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSender, err)
	}

	if cmd.ReferenceID != "" {
		existing, err := s.replay(ctx, cmd)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	fee := s.deps.Fees.Fee(cmd.Amount)
	debit := cmd.Amount + fee

	keys := []string{lock.AccountKey(cmd.Sender), lock.AccountKey(cmd.Recipient)}
	err = runLocked(ctx, s.deps, keys, func(ctx context.Context, tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, cmd.Sender, cmd.Recipient)
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}

		sender, ok := accounts[cmd.Sender]
		if !ok {
			return fmt.Errorf("%w: %w", domain.ErrInvalidSender, domain.ErrAccountNotFound)
		}
		if err := requireActive(sender); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidSender, err)
		}

		if cmd.Recipient == cmd.Sender {
			return fmt.Errorf("%w: %w", domain.ErrInvalidRecipient, domain.ErrSelfTransfer)
		}
		recipient, ok := accounts[cmd.Recipient]
		if !ok {
			return domain.ErrInvalidRecipient
		}
		switch recipient.Status {
		case domain.StatusPending:
			return domain.ErrRecipientNotActivated
		case domain.StatusBlocked:
			return domain.ErrRecipientBlocked
		}

		if sender.Balance < debit {
			return domain.ErrInsufficientBalance
		}

		if _, err := tx.AdjustBalance(ctx, sender.ID, -debit); err != nil {
			return balanceErr("debit sender", err)
		}
		if _, err := tx.AdjustBalance(ctx, recipient.ID, cmd.Amount); err != nil {
			return balanceErr("credit recipient", err)
		}

		entry := &models.Transaction{
			Kind:        domain.TxKindTransfer,
			From:        sender.Mobile,
			To:          recipient.Mobile,
			Amount:      cmd.Amount,
			Fee:         fee,
			ReferenceID: cmd.ReferenceID,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		txn = entry
		return nil
	})
	if err != nil {
		// A concurrent request with the same reference committed first.
		if cmd.ReferenceID != "" && errors.Is(err, store.ErrDuplicate) {
			return s.replay(ctx, cmd)
		}
		return nil, err
	}

	observability.AddFeesDestroyed(fee)
	zap.L().Info("transfer completed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("from", txn.From),
		zap.String("to", txn.To),
		zap.String("amount", domain.FormatAmount(txn.Amount)),
		zap.String("fee", domain.FormatAmount(fee)),
	)
	publish(ctx, s.deps.Publisher, events.TransferCompleted, txn)
	return txn, nil
}

// replay returns the sender's transaction already stored under
// cmd.ReferenceID, nil if there is none, or ErrReferenceReused when it
// describes another transfer. Other senders' references are invisible.
func (s *TransferService) replay(ctx context.Context, cmd TransferCmd) (*models.Transaction, error) {
	existing, err := s.deps.Store.Queries().GetTransactionByReference(ctx, cmd.Sender, cmd.ReferenceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check reference: %w", err)
	}
	if existing.To != cmd.Recipient || existing.Amount != cmd.Amount {
		return nil, domain.ErrReferenceReused
	}
	return existing, nil
}
