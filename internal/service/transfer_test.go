package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferScenario(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	l.active(t, "111", domain.RoleUser)
	l.active(t, "222", domain.RoleUser)
	require.Equal(t, int64(40), l.balance(t, "111"))
	require.Equal(t, int64(40), l.balance(t, "222"))

	_, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "111", PIN: testPIN, Recipient: "222", Amount: 50})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(40), l.balance(t, "111"))
	assert.Equal(t, int64(40), l.balance(t, "222"))

	txn, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "111", PIN: testPIN, Recipient: "222", Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(0), txn.Fee)
	assert.Equal(t, int64(10), l.balance(t, "111"))
	assert.Equal(t, int64(70), l.balance(t, "222"))

	log := l.logFor(t, "111")
	require.Len(t, log, 1)
	assert.Equal(t, "111", log[0].From)
	assert.Equal(t, "222", log[0].To)
	assert.Equal(t, int64(30), log[0].Amount)
	assert.Contains(t, l.events.Types(), events.TransferCompleted)
}

func TestTransferFeeIsDestroyed(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	l.active(t, "agent", domain.RoleAgent)
	l.active(t, "user", domain.RoleUser)

	cases := []struct {
		amount     int64
		fee        int64
		wantSender int64
	}{
		{amount: 100, fee: 0, wantSender: 9900},
		{amount: 101, fee: 5, wantSender: 9900 - 106},
	}
	recipient := l.balance(t, "user")
	for _, tc := range cases {
		before := l.balance(t, "agent")
		txn, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "agent", PIN: testPIN, Recipient: "user", Amount: tc.amount})
		require.NoError(t, err)
		assert.Equal(t, tc.fee, txn.Fee)

		recipient += tc.amount
		assert.Equal(t, before-tc.amount-tc.fee, l.balance(t, "agent"))
		assert.Equal(t, tc.wantSender, l.balance(t, "agent"))
		assert.Equal(t, recipient, l.balance(t, "user"))
	}
}

func TestTransferPreconditionOrder(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()

	l.active(t, "111", domain.RoleUser)
	l.register(t, "pending", domain.RoleUser)
	l.active(t, "blocked", domain.RoleUser)
	_, err := l.lifecycle.Block(ctx, l.adminID(), "blocked")
	require.NoError(t, err)

	cases := []struct {
		name string
		cmd  TransferCmd
		want error
	}{
		{name: "missing sender", cmd: TransferCmd{Sender: "nobody", PIN: testPIN, Recipient: "111", Amount: 1}, want: domain.ErrInvalidSender},
		{name: "wrong pin", cmd: TransferCmd{Sender: "111", PIN: "00000", Recipient: "nobody", Amount: 1}, want: domain.ErrSecretMismatch},
		{name: "pending sender", cmd: TransferCmd{Sender: "pending", PIN: testPIN, Recipient: "111", Amount: 1}, want: domain.ErrAccountNotActive},
		{name: "blocked sender", cmd: TransferCmd{Sender: "blocked", PIN: testPIN, Recipient: "111", Amount: 1}, want: domain.ErrInvalidSender},
		{name: "missing recipient", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "nobody", Amount: 1000}, want: domain.ErrInvalidRecipient},
		{name: "self", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "111", Amount: 1}, want: domain.ErrSelfTransfer},
		{name: "pending recipient", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "pending", Amount: 1000}, want: domain.ErrRecipientNotActivated},
		{name: "blocked recipient", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "blocked", Amount: 1000}, want: domain.ErrRecipientBlocked},
		{name: "drain to admin", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "000", Amount: 40}, want: nil},
		{name: "zero amount", cmd: TransferCmd{Sender: "111", PIN: testPIN, Recipient: "000", Amount: 0}, want: domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.transfers.Transfer(ctx, tc.cmd)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Every failure above left balances untouched.
	assert.Equal(t, int64(0), l.balance(t, "111"))
	assert.Equal(t, int64(0), l.balance(t, "pending"))
	assert.Equal(t, int64(40), l.balance(t, "blocked"))
}

func TestTransferSenderFailuresAreInvalidSender(t *testing.T) {
	l := newMemLedger(t)
	l.active(t, "111", domain.RoleUser)

	_, err := l.transfers.Transfer(context.Background(), TransferCmd{Sender: "111", PIN: "wrong", Recipient: "000", Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSender)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUnauthorized, kind)
}

func TestTransferReferenceReplay(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()
	l.active(t, "111", domain.RoleUser)
	l.active(t, "222", domain.RoleUser)

	cmd := TransferCmd{Sender: "111", PIN: testPIN, Recipient: "222", Amount: 10, ReferenceID: "ref-123"}
	first, err := l.transfers.Transfer(ctx, cmd)
	require.NoError(t, err)

	second, err := l.transfers.Transfer(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(30), l.balance(t, "111"))

	cmd.Amount = 11
	_, err = l.transfers.Transfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrReferenceReused)
}

func TestTransferReferenceScopedToSender(t *testing.T) {
	l := newMemLedger(t)
	ctx := context.Background()
	l.active(t, "111", domain.RoleUser)
	l.active(t, "222", domain.RoleUser)
	l.active(t, "333", domain.RoleUser)

	first, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "111", PIN: testPIN, Recipient: "333", Amount: 10, ReferenceID: "1"})
	require.NoError(t, err)

	second, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "222", PIN: testPIN, Recipient: "333", Amount: 5, ReferenceID: "1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "222", second.From)

	assert.Equal(t, int64(30), l.balance(t, "111"))
	assert.Equal(t, int64(35), l.balance(t, "222"))
	assert.Equal(t, int64(55), l.balance(t, "333"))
}

// TestTransferConcurrentOppositeDirections moves value back and forth between
// two accounts from many goroutines; balances must stay non-negative and the
// total must only shrink by the fees charged.
func TestTransferConcurrentOppositeDirections(t *testing.T) {
	l := newMemLedger(t)
	runConcurrentTransfers(t, l)
}

func TestTransferDeadlock(t *testing.T) {
	l := newPgLedger(t)
	runConcurrentTransfers(t, l)
}

func runConcurrentTransfers(t *testing.T, l *ledger) {
	t.Helper()
	ctx := context.Background()

	l.active(t, "a-agent", domain.RoleAgent)
	l.active(t, "b-agent", domain.RoleAgent)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "a-agent", PIN: testPIN, Recipient: "b-agent", Amount: 150})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := l.transfers.Transfer(ctx, TransferCmd{Sender: "b-agent", PIN: testPIN, Recipient: "a-agent", Amount: 50})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("unexpected transfer error: %v", err)
		}
	}

	a, b := l.balance(t, "a-agent"), l.balance(t, "b-agent")
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b, int64(0))

	var fees int64
	for _, txn := range l.logFor(t, "a-agent") {
		fees += txn.Fee
	}
	assert.Equal(t, int64(20000)-fees, a+b)
	assert.Equal(t, int64(20*5), fees)
}
