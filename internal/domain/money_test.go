package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeePolicy(t *testing.T) {
	p := DefaultFeePolicy()

	cases := []struct {
		amount int64
		fee    int64
		debit  int64
	}{
		{amount: 1, fee: 0, debit: 1},
		{amount: 30, fee: 0, debit: 30},
		{amount: 100, fee: 0, debit: 100},
		{amount: 101, fee: 5, debit: 106},
		{amount: 5000, fee: 5, debit: 5005},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.fee, p.Fee(tc.amount), "fee for %d", tc.amount)
		assert.Equal(t, tc.debit, p.Debit(tc.amount), "debit for %d", tc.amount)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int64
		ok   bool
	}{
		{name: "whole", in: "30", want: 30, ok: true},
		{name: "trailing_zeros", in: "200.00", want: 200, ok: true},
		{name: "zero", in: "0", ok: false},
		{name: "negative", in: "-5", ok: false},
		{name: "fractional", in: "10.5", ok: false},
		{name: "huge", in: "1e30", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(decimal.RequireFromString(tc.in))
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStartingBalances(t *testing.T) {
	s := DefaultStartingBalances()
	assert.Equal(t, int64(10000), s.For(RoleAgent))
	assert.Equal(t, int64(40), s.For(RoleUser))
	assert.Equal(t, int64(0), s.For(RoleAdmin))
}

func TestDeclinePolicy(t *testing.T) {
	all, ok := ParseDeclinePolicy("")
	require.True(t, ok)
	assert.True(t, all.Refunds(KindCashIn))
	assert.True(t, all.Refunds(KindCashOut))

	strict, ok := ParseDeclinePolicy("CASH_OUT_ONLY")
	require.True(t, ok)
	assert.False(t, strict.Refunds(KindCashIn))
	assert.True(t, strict.Refunds(KindCashOut))

	_, ok = ParseDeclinePolicy("sometimes")
	assert.False(t, ok)
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("transfer: %w: %w", ErrInvalidSender, ErrSecretMismatch)

	assert.True(t, errors.Is(err, ErrInvalidSender))
	assert.True(t, errors.Is(err, ErrSecretMismatch))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUnauthorized, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
