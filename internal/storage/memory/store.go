package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

const defaultMaxUnits = 128

// MemoryAccountStore is an in-memory implementation of interfaces.AccountStore.
//
// Each statement is atomic under mu, but a unit of work is not isolated:
// debits are applied as soon as they run and undone on rollback, credits and
// new accounts become visible at commit, and tx hashes are reserved on insert.
// That keeps guarded debits safe and leaves the read-then-write race of an
// unguarded transfer observable. It is weaker than Postgres: an uncommitted
// debit is visible to other units of work, and a concurrent duplicate tx hash
// is rejected at once instead of waiting on the first unit of work.
type MemoryAccountStore struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	transactions map[string]models.Transaction
	reserved     map[string]struct{}
	order        []string
	pool         chan struct{}
	now          func() time.Time
}

// NewMemoryAccountStore creates a store that allows at most maxUnits units of
// work in flight; Begin blocks beyond that.
func NewMemoryAccountStore(maxUnits int) *MemoryAccountStore {
	if maxUnits <= 0 {
		maxUnits = defaultMaxUnits
	}
	return &MemoryAccountStore{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]models.Transaction),
		reserved:     make(map[string]struct{}),
		pool:         make(chan struct{}, maxUnits),
		now:          time.Now,
	}
}

func (m *MemoryAccountStore) Begin(ctx context.Context) (interfaces.AccountTx, error) {
	select {
	case m.pool <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin: %w", ctx.Err())
	}
	return &memoryTx{store: m}, nil
}

// InFlight returns how many units of work currently hold a pool slot.
func (m *MemoryAccountStore) InFlight() int {
	return len(m.pool)
}

func (m *MemoryAccountStore) CreateAccount(ctx context.Context, address string, initial decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[address]; exists {
		return false, nil
	}
	m.accounts[address] = &models.Account{Address: address, Balance: initial, UpdatedAt: m.now()}
	return true, nil
}

func (m *MemoryAccountStore) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balanceLocked(address)
}

func (m *MemoryAccountStore) AccountActivity(ctx context.Context) ([]models.AccountActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byAddress := make(map[string]*models.AccountActivity, len(m.accounts))
	for address, acct := range m.accounts {
		byAddress[address] = &models.AccountActivity{
			Address: address,
			Balance: acct.Balance,
			Credit:  decimal.Zero,
			Debit:   decimal.Zero,
		}
	}
	for _, entry := range m.transactions {
		if a, ok := byAddress[entry.ToAddress]; ok {
			a.Credit = a.Credit.Add(entry.Amount)
		}
		if a, ok := byAddress[entry.FromAddress]; ok {
			a.Debit = a.Debit.Add(entry.Amount)
		}
	}

	activity := make([]models.AccountActivity, 0, len(byAddress))
	for _, a := range byAddress {
		activity = append(activity, *a)
	}
	sort.Slice(activity, func(i, j int) bool { return activity[i].Address < activity[j].Address })
	return activity, nil
}

// LedgerEntries returns a copy of all committed entries in commit order.
func (m *MemoryAccountStore) LedgerEntries(ctx context.Context) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]models.Transaction, 0, len(m.order))
	for _, hash := range m.order {
		entries = append(entries, m.transactions[hash])
	}
	return entries, nil
}

func (m *MemoryAccountStore) Truncate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = make(map[string]*models.Account)
	m.transactions = make(map[string]models.Transaction)
	m.reserved = make(map[string]struct{})
	m.order = nil
	return nil
}

func (m *MemoryAccountStore) balanceLocked(address string) (decimal.Decimal, error) {
	acct, ok := m.accounts[address]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, address)
	}
	return acct.Balance, nil
}

// adjustLocked adds delta to an existing account. A missing row is ignored,
// which only happens when Truncate raced with an open unit of work.
func (m *MemoryAccountStore) adjustLocked(address string, delta decimal.Decimal) {
	if acct, ok := m.accounts[address]; ok {
		acct.Balance = acct.Balance.Add(delta)
		acct.UpdatedAt = m.now()
	}
}

func (m *MemoryAccountStore) release() {
	<-m.pool
}

// Compile-time check: ensure MemoryAccountStore implements AccountStore interface
var _ interfaces.AccountStore = (*MemoryAccountStore)(nil)
