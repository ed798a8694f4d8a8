package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are whole currency units stored as int64. The ledger has a single
// currency, so no currency code travels with an amount.

// ParseAmount converts a client supplied decimal into ledger units. Only
// positive whole amounts are accepted.
func ParseAmount(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: fractional units are not supported", ErrInvalidAmount)
	}
	if !d.LessThanOrEqual(decimal.NewFromInt(maxAmount)) {
		return 0, fmt.Errorf("%w: exceeds maximum", ErrInvalidAmount)
	}
	return d.IntPart(), nil
}

const maxAmount = int64(1) << 52

// FormatAmount renders an amount with two decimal places for logs and events.
func FormatAmount(amount int64) string {
	return decimal.NewFromInt(amount).StringFixed(2)
}

// FeePolicy is the flat surcharge applied to direct transfers above a
// threshold. The fee is not credited to any account.
type FeePolicy struct {
	Threshold int64
	Flat      int64
}

// DefaultFeePolicy charges 5 units on transfers strictly above 100.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{Threshold: 100, Flat: 5}
}

// Fee returns the surcharge for a transfer of amount.
func (p FeePolicy) Fee(amount int64) int64 {
	if amount > p.Threshold {
		return p.Flat
	}
	return 0
}

// Debit returns what the sender pays for a transfer of amount.
func (p FeePolicy) Debit(amount int64) int64 {
	return amount + p.Fee(amount)
}

// StartingBalances are granted once, on first activation.
type StartingBalances struct {
	Agent int64
	User  int64
}

// DefaultStartingBalances grants 10000 to agents and 40 to users.
func DefaultStartingBalances() StartingBalances {
	return StartingBalances{Agent: 10000, User: 40}
}

// For returns the seed for role; roles without a seed get zero.
func (s StartingBalances) For(role Role) int64 {
	switch role {
	case RoleAgent:
		return s.Agent
	case RoleUser:
		return s.User
	default:
		return 0
	}
}
