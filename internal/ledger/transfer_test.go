package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	modelevents "github.com/sheikh-saqib/transfer-race-ledger/internal/models/events"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []ledger.Strategy{ledger.Strict, ledger.Relaxed}

func TestTransferCommits(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			t.Parallel()

			store, l := newMemoryLedger(t, map[string]int64{"0x0": 10, "0x1": 0})

			outcome, err := l.Transfer(context.Background(), strategy, transfer("a", "0x0", "0x1", 4))
			require.NoError(t, err)
			assert.Equal(t, ledger.StatusCommitted, outcome.Status)
			assert.Equal(t, int64(1), outcome.RowsAffected)

			assert.True(t, balanceOf(t, store, "0x0").Equal(d(6)))
			assert.True(t, balanceOf(t, store, "0x1").Equal(d(4)))

			entries, err := l.GetLedgerEntries(context.Background())
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "a", entries[0].TxHash)
			assert.True(t, entries[0].Amount.Equal(d(4)))
		})
	}
}

func TestStrictIsIdempotent(t *testing.T) {
	t.Parallel()

	store, l := newMemoryLedger(t, map[string]int64{"0x0": 10, "0x1": 0})
	req := transfer("same", "0x0", "0x1", 3)

	first, err := l.Transfer(context.Background(), ledger.Strict, req)
	require.NoError(t, err)
	assert.True(t, first.Committed())

	second, err := l.Transfer(context.Background(), ledger.Strict, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSkipped, second.Status)
	assert.Zero(t, second.RowsAffected)

	assert.True(t, balanceOf(t, store, "0x0").Equal(d(7)))
	assert.True(t, balanceOf(t, store, "0x1").Equal(d(3)))

	entries, err := store.LedgerEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStrictRetryAfterFailureWithSameKey(t *testing.T) {
	t.Parallel()

	store, l := newMemoryLedger(t, map[string]int64{"0x0": 1, "0x1": 0})
	req := transfer("retry", "0x0", "0x1", 5)

	_, err := l.Transfer(context.Background(), ledger.Strict, req)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// The failed attempt rolled its ledger entry back, so the key is reusable.
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.UnconditionalAdjust(context.Background(), "0x0", d(9))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	outcome, err := l.Transfer(context.Background(), ledger.Strict, req)
	require.NoError(t, err)
	assert.True(t, outcome.Committed())
	assert.True(t, balanceOf(t, store, "0x0").Equal(d(5)))
}

func TestRelaxedDuplicateIsSkippedAndRolledBack(t *testing.T) {
	t.Parallel()

	store, l := newMemoryLedger(t, map[string]int64{"0x0": 10, "0x1": 0})
	req := transfer("dup", "0x0", "0x1", 2)

	_, err := l.Transfer(context.Background(), ledger.Relaxed, req)
	require.NoError(t, err)

	outcome, err := l.Transfer(context.Background(), ledger.Relaxed, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSkipped, outcome.Status)

	assert.True(t, balanceOf(t, store, "0x0").Equal(d(8)))
	assert.True(t, balanceOf(t, store, "0x1").Equal(d(2)))
}

func TestTransferUnknownSender(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			t.Parallel()

			store, l := newMemoryLedger(t, map[string]int64{"0x1": 0})

			_, err := l.Transfer(context.Background(), strategy, transfer("x", "0xghost", "0x1", 1))
			require.ErrorIs(t, err, ledger.ErrAccountNotFound)
			assert.Equal(t, ledger.KindAccountNotFound, ledger.KindOf(err))
			assert.Contains(t, err.Error(), "0xghost")

			entries, err := store.LedgerEntries(context.Background())
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			t.Parallel()

			store, l := newMemoryLedger(t, map[string]int64{"0x0": 2, "0x1": 0})

			_, err := l.Transfer(context.Background(), strategy, transfer("x", "0x0", "0x1", 3))
			require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

			var te *ledger.TransferError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "0x0", te.Address)

			assert.True(t, balanceOf(t, store, "0x0").Equal(d(2)))
			assert.True(t, balanceOf(t, store, "0x1").IsZero())
			assert.Zero(t, store.InFlight(), "unit of work must be released")
		})
	}
}

func TestStrictCreatesMissingRecipient(t *testing.T) {
	t.Parallel()

	store, l := newMemoryLedger(t, map[string]int64{"0x0": 5})

	_, err := l.Transfer(context.Background(), ledger.Strict, transfer("n", "0x0", "0xnew", 5))
	require.NoError(t, err)
	assert.True(t, balanceOf(t, store, "0xnew").Equal(d(5)))
	assert.True(t, balanceOf(t, store, "0x0").IsZero())
}

func TestRelaxedMissingRecipientFails(t *testing.T) {
	t.Parallel()

	store, l := newMemoryLedger(t, map[string]int64{"0x0": 5})

	_, err := l.Transfer(context.Background(), ledger.Relaxed, transfer("n", "0x0", "0xnew", 5))
	require.ErrorIs(t, err, ledger.ErrOther)
	assert.Contains(t, err.Error(), "recipient update failed")
	assert.True(t, balanceOf(t, store, "0x0").Equal(d(5)), "sender debit rolled back")
}

func TestTransferValidation(t *testing.T) {
	t.Parallel()

	_, l := newMemoryLedger(t, map[string]int64{"0x0": 5})

	tests := []struct {
		name     string
		strategy ledger.Strategy
		hash     string
		from     string
		amount   int64
	}{
		{name: "zero amount", strategy: ledger.Strict, hash: "h", from: "0x0", amount: 0},
		{name: "negative amount", strategy: ledger.Strict, hash: "h", from: "0x0", amount: -1},
		{name: "missing hash", strategy: ledger.Strict, hash: "", from: "0x0", amount: 1},
		{name: "missing sender", strategy: ledger.Strict, hash: "h", from: " ", amount: 1},
		{name: "unknown strategy", strategy: ledger.Strategy("yolo"), hash: "h", from: "0x0", amount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Transfer(context.Background(), tt.strategy, transfer(tt.hash, tt.from, "0x1", tt.amount))
			require.Error(t, err)
			assert.Equal(t, ledger.KindOther, ledger.KindOf(err))
		})
	}
}

func TestTransferRejectsFractionalAmount(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			store, l := newMemoryLedger(t, map[string]int64{"0x0": 10, "0x1": 0})
			req := transfer("frac", "0x0", "0x1", 0)
			req.Amount = decimal.RequireFromString("0.5")

			outcome, err := l.Transfer(context.Background(), strategy, req)
			require.Error(t, err)
			assert.Equal(t, ledger.KindOther, ledger.KindOf(err))
			assert.False(t, outcome.Committed())

			assert.True(t, balanceOf(t, store, "0x0").Equal(d(10)))
			entries, err := l.GetLedgerEntries(context.Background())
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestTransferStoreError(t *testing.T) {
	t.Parallel()

	base := memory.NewMemoryAccountStore(4)
	seed(t, base, map[string]int64{"0x0": 5, "0x1": 0})
	boom := errors.New("connection reset")
	store := &hookStore{AccountStore: base, wrap: func(tx interfaces.AccountTx) interfaces.AccountTx {
		return &faultTx{AccountTx: tx, insertErr: boom}
	}}
	l := ledger.NewLedger(store)

	_, err := l.Transfer(context.Background(), ledger.Strict, transfer("h", "0x0", "0x1", 1))
	require.ErrorIs(t, err, ledger.ErrStore)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, base.InFlight())
}

func TestStrictCreditFailureRollsBack(t *testing.T) {
	t.Parallel()

	base := memory.NewMemoryAccountStore(4)
	seed(t, base, map[string]int64{"0x0": 5, "0x1": 0})
	zero := int64(0)
	store := &hookStore{AccountStore: base, wrap: func(tx interfaces.AccountTx) interfaces.AccountTx {
		return &faultTx{AccountTx: tx, creditRows: &zero}
	}}
	l := ledger.NewLedger(store)

	_, err := l.Transfer(context.Background(), ledger.Strict, transfer("h", "0x0", "0x1", 2))
	require.ErrorIs(t, err, ledger.ErrOther)
	assert.Contains(t, err.Error(), "credit failed")

	assert.True(t, balanceOf(t, base, "0x0").Equal(d(5)))
	entries, err := base.LedgerEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransferPublishesCommitted(t *testing.T) {
	t.Parallel()

	store := memory.NewMemoryAccountStore(4)
	seed(t, store, map[string]int64{"0x0": 5, "0x1": 0})
	publisher := &recordingPublisher{}
	l := ledger.NewLedger(store, ledger.WithPublisher(publisher, "transfers"))

	req := transfer("h", "0x0", "0x1", 2)
	_, err := l.Transfer(context.Background(), ledger.Strict, req)
	require.NoError(t, err)
	_, err = l.Transfer(context.Background(), ledger.Strict, req)
	require.NoError(t, err)

	events := publisher.all()
	require.Len(t, events, 1, "skipped transfers publish nothing")
	assert.Equal(t, "transfers", events[0].topic)
	assert.Equal(t, "h", events[0].key)

	event, ok := events[0].event.(modelevents.TransferCommitted)
	require.True(t, ok)
	assert.Equal(t, "strict", event.Strategy)
	assert.True(t, event.Amount.Equal(d(2)))
	assert.NotEmpty(t, event.EventID)
}

// Both transfers read a balance of 3 before either writes. Relaxed lets both
// through; Strict lets exactly one through.
func TestConcurrentCheckThenAct(t *testing.T) {
	t.Parallel()

	t.Run("relaxed overdraws", func(t *testing.T) {
		t.Parallel()

		base := memory.NewMemoryAccountStore(4)
		seed(t, base, map[string]int64{"0x0": 3, "0x1": 0, "0x2": 0})

		var reads sync.WaitGroup
		reads.Add(2)
		store := &hookStore{AccountStore: base, wrap: func(tx interfaces.AccountTx) interfaces.AccountTx {
			return &barrierTx{AccountTx: tx, reads: &reads}
		}}
		l := ledger.NewLedger(store)

		errs := runPair(l, ledger.Relaxed)
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		assert.True(t, balanceOf(t, base, "0x0").Equal(d(-3)))

		report, err := ledger.NewVerifier(base).Verify(context.Background(), ledger.FundingMap(map[string]decimal.Decimal{"0x0": d(3)}))
		require.NoError(t, err)
		assert.False(t, report.Solvent())
		assert.True(t, report.Overdraft.Equal(d(-3)))
	})

	t.Run("strict holds", func(t *testing.T) {
		t.Parallel()

		store, l := newMemoryLedger(t, map[string]int64{"0x0": 3, "0x1": 0, "0x2": 0})

		errs := runPair(l, ledger.Strict)
		failures := 0
		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
				failures++
			}
		}
		assert.Equal(t, 1, failures)
		assert.True(t, balanceOf(t, store, "0x0").IsZero())
		assert.True(t, totalBalance(t, store).Equal(d(3)))
	})
}

func runPair(l *ledger.Ledger, strategy ledger.Strategy) [2]error {
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, to := range []string{"0x1", "0x2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = l.Transfer(context.Background(), strategy, transfer(to, "0x0", to, 3))
		}()
	}
	wg.Wait()
	return errs
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ledger.ParseStrategy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, ledger.Strict, s)

	s, err = ledger.ParseStrategy("relaxed")
	require.NoError(t, err)
	assert.Equal(t, ledger.Relaxed, s)

	_, err = ledger.ParseStrategy("optimistic")
	assert.Error(t, err)
}
