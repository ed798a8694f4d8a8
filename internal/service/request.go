package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/lock"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestService runs the agent-mediated cash-in and cash-out workflow:
// requests are initiated by a participant and decided by an admin.
type RequestService struct {
	deps  Deps
	authz *Authorizer
	audit *AuditService
}

func NewRequestService(deps Deps) *RequestService {
	deps = deps.withDefaults()
	return &RequestService{
		deps:  deps,
		authz: NewAuthorizer(deps.Secrets),
		audit: NewAuditService(),
	}
}

// Caller identifies the authenticated participant behind a request.
type Caller struct {
	ID     uuid.UUID
	Mobile string
	Role   domain.Role
}

// InitiateCashIn parks a cash-in request. No balance moves until approval.
func (s *RequestService) InitiateCashIn(ctx context.Context, requester, agent string, amount int64) (req *models.PendingRequest, err error) {
	defer func() { recordOutcome("cash_in_initiate", err) }()

	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	q := s.deps.Store.Queries()
	agentAcct, err := q.GetAccountByMobile(ctx, agent)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agentAcct == nil || !agentAcct.Is(domain.RoleAgent) {
		return nil, domain.ErrInvalidAgent
	}

	requesterAcct, err := q.GetAccountByMobile(ctx, requester)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrInvalidUser
	}
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	if err := requireActive(requesterAcct); err != nil {
		return nil, err
	}
	if !requesterAcct.Is(domain.RoleUser) {
		return nil, domain.ErrInvalidUser
	}
	if requesterAcct.Mobile == agentAcct.Mobile {
		return nil, domain.ErrCounterpartyMismatch
	}

	req = &models.PendingRequest{
		Kind:      domain.KindCashIn,
		Requester: requesterAcct.Mobile,
		Agent:     agentAcct.Mobile,
		Amount:    amount,
	}
	err = s.deps.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return s.insertRequest(ctx, tx, req, &requesterAcct.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logRequest("cash-in initiated", req)
	publish(ctx, s.deps.Publisher, events.RequestInitiated, req)
	return req, nil
}

// InitiateCashOut verifies the requester, debits the amount immediately and
// parks the request in the same store transaction.
func (s *RequestService) InitiateCashOut(ctx context.Context, requester, secret, agent string, amount int64) (req *models.PendingRequest, err error) {
	defer func() { recordOutcome("cash_out_initiate", err) }()

	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	if _, err := s.authz.Authorize(ctx, s.deps.Store.Queries(), requester, secret); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidUser
		}
		return nil, err
	}

	err = runLocked(ctx, s.deps, []string{lock.AccountKey(requester)}, func(ctx context.Context, tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, requester)
		if err != nil {
			return fmt.Errorf("lock requester: %w", err)
		}
		requesterAcct, ok := accounts[requester]
		if !ok {
			return domain.ErrInvalidUser
		}
		if err := requireActive(requesterAcct); err != nil {
			return err
		}
		// Only users can later approve the request.
		if !requesterAcct.Is(domain.RoleUser) {
			return domain.ErrInvalidUser
		}
		if requesterAcct.Balance < amount {
			return domain.ErrInsufficientBalance
		}

		agentAcct, err := tx.GetAccountByMobile(ctx, agent)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load agent: %w", err)
		}
		if agentAcct == nil || !agentAcct.Is(domain.RoleAgent) {
			return domain.ErrInvalidAgent
		}
		if agentAcct.Mobile == requesterAcct.Mobile {
			return domain.ErrCounterpartyMismatch
		}

		if _, err := tx.AdjustBalance(ctx, requesterAcct.ID, -amount); err != nil {
			return balanceErr("pre-debit requester", err)
		}

		pending := &models.PendingRequest{
			Kind:      domain.KindCashOut,
			Requester: requesterAcct.Mobile,
			Agent:     agentAcct.Mobile,
			Amount:    amount,
		}
		if err := s.insertRequest(ctx, tx, pending, &requesterAcct.ID); err != nil {
			return err
		}
		req = pending
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logRequest("cash-out initiated", req)
	publish(ctx, s.deps.Publisher, events.RequestInitiated, req)
	return req, nil
}

func (s *RequestService) insertRequest(ctx context.Context, tx store.Tx, req *models.PendingRequest, actorID *uuid.UUID) error {
	if err := tx.InsertPendingRequest(ctx, req); err != nil {
		return fmt.Errorf("insert pending request: %w", err)
	}
	return s.audit.Write(ctx, tx, auditEntityRequest, req.ID, actorID, "REQUEST_INITIATED", "", domain.RequestStateInitiated, map[string]interface{}{
		"kind":      req.Kind,
		"requester": req.Requester,
		"agent":     req.Agent,
		"amount":    req.Amount,
	})
}

// Approve finalizes a pending request. Cash-in moves the amount from the
// agent to the requester; cash-out credits the agent, the requester having
// been debited at initiation. The log append and the removal of the pending
// request commit together.
func (s *RequestService) Approve(ctx context.Context, actorID *uuid.UUID, requestID uuid.UUID) (txn *models.Transaction, err error) {
	defer func() { recordOutcome("request_approve", err) }()

	peek, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	keys := []string{lock.RequestKey(requestID.String()), lock.AccountKey(peek.Requester), lock.AccountKey(peek.Agent)}
	err = runLocked(ctx, s.deps, keys, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.LockPendingRequest(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("lock pending request: %w", err)
		}

		accounts, err := tx.LockAccounts(ctx, req.Requester, req.Agent)
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		requester, okRequester := accounts[req.Requester]
		agent, okAgent := accounts[req.Agent]
		if !okRequester || !okAgent || !requester.Is(domain.RoleUser) || !agent.Is(domain.RoleAgent) {
			return domain.ErrCounterpartyMismatch
		}

		entry := &models.Transaction{
			Kind:      string(req.Kind),
			Amount:    req.Amount,
			RequestID: &req.ID,
		}
		switch req.Kind {
		case domain.KindCashIn:
			if agent.Balance < req.Amount {
				return domain.ErrInsufficientBalance
			}
			if _, err := tx.AdjustBalance(ctx, agent.ID, -req.Amount); err != nil {
				return balanceErr("debit agent", err)
			}
			if _, err := tx.AdjustBalance(ctx, requester.ID, req.Amount); err != nil {
				return balanceErr("credit requester", err)
			}
			entry.From, entry.To = agent.Mobile, requester.Mobile
		case domain.KindCashOut:
			if _, err := tx.AdjustBalance(ctx, agent.ID, req.Amount); err != nil {
				return balanceErr("credit agent", err)
			}
			entry.From, entry.To = requester.Mobile, agent.Mobile
		default:
			return fmt.Errorf("%w: unknown request kind %q", domain.ErrInvalidRequest, req.Kind)
		}

		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		if err := closeRequest(ctx, tx, s.audit, req, domain.RequestStateApproved, actorID, map[string]interface{}{
			"transaction_id": entry.ID,
			"kind":           req.Kind,
			"amount":         req.Amount,
		}); err != nil {
			return err
		}
		txn = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("request approved",
		zap.String("request_id", requestID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("kind", txn.Kind),
		zap.String("amount", domain.FormatAmount(txn.Amount)),
	)
	publish(ctx, s.deps.Publisher, events.RequestApproved, txn)
	return txn, nil
}

// DeclineResult reports what a decline did.
type DeclineResult struct {
	Request  models.PendingRequest `json:"request"`
	Refunded int64                 `json:"refunded"`
}

// Decline discards a pending request. Whether the requester is credited
// depends on the configured DeclinePolicy. requester, when set, must name the
// request's requester.
func (s *RequestService) Decline(ctx context.Context, actorID *uuid.UUID, requestID uuid.UUID, requester string) (res *DeclineResult, err error) {
	defer func() { recordOutcome("request_decline", err) }()

	peek, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if requester == "" {
		requester = peek.Requester
	}
	if requester != peek.Requester {
		return nil, domain.ErrCounterpartyMismatch
	}

	keys := []string{lock.RequestKey(requestID.String()), lock.AccountKey(requester)}
	err = runLocked(ctx, s.deps, keys, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.LockPendingRequest(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("lock pending request: %w", err)
		}

		accounts, err := tx.LockAccounts(ctx, req.Requester)
		if err != nil {
			return fmt.Errorf("lock requester: %w", err)
		}
		requesterAcct, ok := accounts[req.Requester]
		if !ok {
			return domain.ErrInvalidUser
		}

		var refunded int64
		if s.deps.Decline.Refunds(req.Kind) {
			if _, err := tx.AdjustBalance(ctx, requesterAcct.ID, req.Amount); err != nil {
				return balanceErr("refund requester", err)
			}
			refunded = req.Amount
		}

		if err := closeRequest(ctx, tx, s.audit, req, domain.RequestStateDeclined, actorID, map[string]interface{}{
			"kind":     req.Kind,
			"amount":   req.Amount,
			"refunded": refunded,
			"policy":   s.deps.Decline,
		}); err != nil {
			return err
		}
		res = &DeclineResult{Request: *req, Refunded: refunded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("request declined",
		zap.String("request_id", requestID.String()),
		zap.String("kind", string(res.Request.Kind)),
		zap.String("refunded", domain.FormatAmount(res.Refunded)),
	)
	publish(ctx, s.deps.Publisher, events.RequestDeclined, res)
	return res, nil
}

// ListPending returns the requests visible to caller: admins see all,
// agents those naming them, everyone else their own.
func (s *RequestService) ListPending(ctx context.Context, caller Caller, filter store.RequestFilter) ([]models.PendingRequest, error) {
	switch caller.Role {
	case domain.RoleAdmin:
	case domain.RoleAgent:
		filter.Agent = caller.Mobile
	default:
		filter.Requester = caller.Mobile
	}
	reqs, err := s.deps.Store.Queries().ListPendingRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return reqs, nil
}

func (s *RequestService) loadRequest(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	req, err := s.deps.Store.Queries().GetPendingRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending request: %w", err)
	}
	return req, nil
}

func (s *RequestService) logRequest(msg string, req *models.PendingRequest) {
	zap.L().Info(msg,
		zap.String("request_id", req.ID.String()),
		zap.String("requester", req.Requester),
		zap.String("agent", req.Agent),
		zap.String("amount", domain.FormatAmount(req.Amount)),
	)
}
