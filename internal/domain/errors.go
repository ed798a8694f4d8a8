package domain

import "errors"

// Kind classifies a ledger failure for callers that need to react to it.
type Kind string

const (
	KindInvalid             Kind = "invalid"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidState        Kind = "invalid_state"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindConflict            Kind = "conflict"
)

// Error is a ledger precondition failure. Sentinel values are compared by
// identity, so wrapped errors still match with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidAmount  = newError(KindInvalid, "invalid_amount", "invalid amount")
	ErrInvalidRole    = newError(KindInvalid, "invalid_role", "invalid role")
	ErrInvalidRequest = newError(KindInvalid, "invalid_request", "invalid request")

	ErrAccountNotFound  = newError(KindNotFound, "account_not_found", "account not found")
	ErrRequestNotFound  = newError(KindNotFound, "request_not_found", "request not found")
	ErrInvalidAgent     = newError(KindNotFound, "invalid_agent", "agent not found")
	ErrInvalidUser      = newError(KindNotFound, "invalid_user", "user not found")
	ErrInvalidRecipient = newError(KindNotFound, "invalid_recipient", "recipient not found")
	ErrRoleNotApplied   = newError(KindNotFound, "role_not_applied", "no account applied for this role")

	ErrSecretMismatch = newError(KindUnauthorized, "secret_mismatch", "pin does not match")
	ErrInvalidSender  = newError(KindUnauthorized, "invalid_sender", "sender could not be authorized")
	ErrForbidden      = newError(KindUnauthorized, "forbidden", "insufficient permissions")

	ErrAccountNotActive      = newError(KindInvalidState, "account_not_active", "account is not active")
	ErrAccountBlocked        = newError(KindInvalidState, "account_blocked", "account is blocked")
	ErrRecipientNotActivated = newError(KindInvalidState, "recipient_not_activated", "recipient is not activated")
	ErrRecipientBlocked      = newError(KindInvalidState, "recipient_blocked", "recipient is blocked")
	ErrCounterpartyMismatch  = newError(KindInvalidState, "counterparty_mismatch", "request counterparties do not match their roles")
	ErrSelfTransfer          = newError(KindInvalidState, "self_transfer", "sender and recipient are the same account")
	ErrInvalidTransition     = newError(KindInvalidState, "invalid_transition", "invalid request state transition")

	ErrInsufficientBalance = newError(KindInsufficientBalance, "insufficient_balance", "insufficient balance")

	ErrEmailTaken      = newError(KindConflict, "email_taken", "an account with this email already exists")
	ErrMobileTaken     = newError(KindConflict, "mobile_taken", "an account with this mobile number already exists")
	ErrReferenceReused = newError(KindConflict, "reference_reused", "reference id already used for a different transfer")
)

// CodeOf returns the code of the first ledger error in err's chain.
func CodeOf(err error) (string, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code, true
	}
	return "", false
}

// KindOf returns the kind of the first ledger error in err's chain.
func KindOf(err error) (Kind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return "", false
}
