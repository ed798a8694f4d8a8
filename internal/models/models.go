package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/google/uuid"
)

// Account is a ledger participant. PINHash is never serialized.
type Account struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Mobile      string        `json:"mobile"`
	PINHash     string        `json:"-"`
	Role        domain.Role   `json:"role"`
	AppliedRole domain.Role   `json:"applied_role"`
	Status      domain.Status `json:"status"`
	Balance     int64         `json:"balance"`
	FundedAt    *time.Time    `json:"funded_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Funded reports whether the account ever received its starting balance.
func (a *Account) Funded() bool {
	return a.FundedAt != nil
}

// Active reports whether the account may take part in balance mutations.
func (a *Account) Active() bool {
	return a.Status == domain.StatusActive
}

// Is reports whether the account is active and holds role.
func (a *Account) Is(role domain.Role) bool {
	return a.Active() && a.Role == role
}

// Transaction is a finalized value movement. Direct transfers carry a fee,
// cash-in and cash-out entries carry the id of the request they finalized.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	Seq         int64      `json:"seq"`
	Kind        string     `json:"kind"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	Amount      int64      `json:"amount"`
	Fee         int64      `json:"fee"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	ReferenceID string     `json:"reference_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PendingRequest is a cash-in or cash-out awaiting an admin decision.
type PendingRequest struct {
	ID        uuid.UUID          `json:"id"`
	Kind      domain.RequestKind `json:"kind"`
	Requester string             `json:"requester"`
	Agent     string             `json:"agent"`
	Amount    int64              `json:"amount"`
	CreatedAt time.Time          `json:"created_at"`
}

// AuditEntry is an immutable record of a state change.
type AuditEntry struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	Metadata   json.RawMessage
	CreatedAt  time.Time
}
