package memory

import (
	"context"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

// memoryTx is used by a single goroutine; all shared state is touched under
// store.mu.
type memoryTx struct {
	store    *MemoryAccountStore
	undo     []func()
	onCommit []func()
	done     bool
}

func (t *memoryTx) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := t.check(ctx); err != nil {
		return decimal.Zero, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	return t.store.balanceLocked(address)
}

func (t *memoryTx) GuardedDebit(ctx context.Context, address string, amount decimal.Decimal) (int64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	acct, ok := t.store.accounts[address]
	if !ok || acct.Balance.LessThan(amount) {
		return 0, nil
	}
	t.store.adjustLocked(address, amount.Neg())
	t.undo = append(t.undo, func() { t.store.adjustLocked(address, amount) })
	return 1, nil
}

func (t *memoryTx) UnconditionalAdjust(ctx context.Context, address string, delta decimal.Decimal) (int64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, ok := t.store.accounts[address]; !ok {
		return 0, nil
	}
	if delta.IsNegative() {
		t.store.adjustLocked(address, delta)
		t.undo = append(t.undo, func() { t.store.adjustLocked(address, delta.Neg()) })
		return 1, nil
	}
	t.onCommit = append(t.onCommit, func() { t.store.adjustLocked(address, delta) })
	return 1, nil
}

func (t *memoryTx) UpsertCredit(ctx context.Context, address string, amount decimal.Decimal) (int64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}

	t.onCommit = append(t.onCommit, func() {
		if _, ok := t.store.accounts[address]; !ok {
			t.store.accounts[address] = &models.Account{Address: address, Balance: amount, UpdatedAt: t.store.now()}
			return
		}
		t.store.adjustLocked(address, amount)
	})
	return 1, nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, entry models.Transaction) (int64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	hash := entry.TxHash
	if _, exists := t.store.transactions[hash]; exists {
		return 0, nil
	}
	if _, reserved := t.store.reserved[hash]; reserved {
		return 0, nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.store.now()
	}

	t.store.reserved[hash] = struct{}{}
	t.undo = append(t.undo, func() { delete(t.store.reserved, hash) })
	t.onCommit = append(t.onCommit, func() {
		delete(t.store.reserved, hash)
		t.store.transactions[hash] = entry
		t.store.order = append(t.store.order, hash)
	})
	return 1, nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return storage.ErrTxDone
	}

	t.store.mu.Lock()
	for _, apply := range t.onCommit {
		apply()
	}
	t.store.mu.Unlock()

	t.finish()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return storage.ErrTxDone
	}

	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()

	t.finish()
	return nil
}

func (t *memoryTx) check(ctx context.Context) error {
	if t.done {
		return storage.ErrTxDone
	}
	return ctx.Err()
}

func (t *memoryTx) finish() {
	t.done = true
	t.undo = nil
	t.onCommit = nil
	t.store.release()
}

var _ interfaces.AccountTx = (*memoryTx)(nil)
