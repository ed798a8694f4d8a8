package domain

import "strings"

// Role is the privilege set an account holds on the ledger.
type Role string

const (
	RolePending Role = "Pending"
	RoleUser    Role = "User"
	RoleAgent   Role = "Agent"
	RoleAdmin   Role = "Admin"
	// RoleNone marks an account whose privileges were revoked.
	RoleNone Role = "None"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusPending Status = "Pending"
	StatusActive  Status = "Active"
	StatusBlocked Status = "Blocked"
)

// RequestKind distinguishes agent-mediated requests.
type RequestKind string

const (
	KindCashIn  RequestKind = "CashIn"
	KindCashOut RequestKind = "CashOut"
)

// Transaction kinds stored in the log.
const (
	TxKindTransfer = "Transfer"
	TxKindCashIn   = string(KindCashIn)
	TxKindCashOut  = string(KindCashOut)
)

// Request states. Requests are removed from the pending set once they reach a
// terminal state; the transition is kept in the audit log.
const (
	RequestStateInitiated = "INITIATED"
	RequestStateApproved  = "APPROVED"
	RequestStateDeclined  = "DECLINED"
)

// DeclinePolicy selects which request kinds are refunded when an admin
// declines them.
type DeclinePolicy string

const (
	// DeclineRefundAll credits the requester for every declined request,
	// including cash-in requests that never debited the requester.
	DeclineRefundAll DeclinePolicy = "all"
	// DeclineRefundCashOutOnly credits the requester only for cash-out
	// requests, which were pre-debited at initiation.
	DeclineRefundCashOutOnly DeclinePolicy = "cash_out_only"
)

// Refunds reports whether declining a request of the given kind credits the
// requester.
func (p DeclinePolicy) Refunds(kind RequestKind) bool {
	if p == DeclineRefundCashOutOnly {
		return kind == KindCashOut
	}
	return true
}

// ParseDeclinePolicy normalizes a configured policy name.
func ParseDeclinePolicy(v string) (DeclinePolicy, bool) {
	switch DeclinePolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", DeclineRefundAll:
		return DeclineRefundAll, true
	case DeclineRefundCashOutOnly:
		return DeclineRefundCashOutOnly, true
	default:
		return "", false
	}
}

// ParseAppliedRole accepts the roles a participant may apply for at
// registration, case-insensitively.
func ParseAppliedRole(v string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "user":
		return RoleUser, true
	case "agent":
		return RoleAgent, true
	default:
		return "", false
	}
}

// ParseRole accepts any assignable role name.
func ParseRole(v string) (Role, bool) {
	if r, ok := ParseAppliedRole(v); ok {
		return r, true
	}
	if strings.EqualFold(strings.TrimSpace(v), string(RoleAdmin)) {
		return RoleAdmin, true
	}
	return "", false
}

// ParseStatus accepts a lifecycle status name, case-insensitively.
func ParseStatus(v string) (Status, bool) {
	for _, s := range []Status{StatusPending, StatusActive, StatusBlocked} {
		if strings.EqualFold(strings.TrimSpace(v), string(s)) {
			return s, true
		}
	}
	return "", false
}
