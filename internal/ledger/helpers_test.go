package ledger_test

import (
	"context"
	"sync"
	"testing"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func seed(t *testing.T, store interfaces.AccountStore, balances map[string]int64) {
	t.Helper()
	for address, amount := range balances {
		created, err := store.CreateAccount(context.Background(), address, d(amount))
		require.NoError(t, err)
		require.True(t, created)
	}
}

func balanceOf(t *testing.T, store interfaces.AccountStore, address string) decimal.Decimal {
	t.Helper()
	b, err := store.GetBalance(context.Background(), address)
	require.NoError(t, err)
	return b
}

func totalBalance(t *testing.T, store interfaces.AccountStore) decimal.Decimal {
	t.Helper()
	activity, err := store.AccountActivity(context.Background())
	require.NoError(t, err)
	total := decimal.Zero
	for _, a := range activity {
		total = total.Add(a.Balance)
	}
	return total
}

func transfer(hash, from, to string, amount int64) models.TransferRequest {
	return models.TransferRequest{TxHash: hash, From: from, To: to, Amount: d(amount)}
}

func newMemoryLedger(t *testing.T, balances map[string]int64) (*memory.MemoryAccountStore, *ledger.Ledger) {
	t.Helper()
	store := memory.NewMemoryAccountStore(16)
	seed(t, store, balances)
	return store, ledger.NewLedger(store)
}

type published struct {
	topic string
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: key, event: event})
	return nil
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

// hookStore lets a test intercept individual statements of a unit of work.
type hookStore struct {
	interfaces.AccountStore
	wrap func(interfaces.AccountTx) interfaces.AccountTx
}

func (s *hookStore) Begin(ctx context.Context) (interfaces.AccountTx, error) {
	tx, err := s.AccountStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return s.wrap(tx), nil
}

// barrierTx holds every balance read until all expected readers have read,
// forcing the check-then-act interleaving.
type barrierTx struct {
	interfaces.AccountTx
	reads *sync.WaitGroup
}

func (t *barrierTx) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	balance, err := t.AccountTx.GetBalance(ctx, address)
	t.reads.Done()
	t.reads.Wait()
	return balance, err
}

type faultTx struct {
	interfaces.AccountTx
	insertErr  error
	creditRows *int64
	panicOn    string
}

func (t *faultTx) InsertTransaction(ctx context.Context, entry models.Transaction) (int64, error) {
	if t.panicOn != "" && entry.TxHash == t.panicOn {
		panic("insert exploded")
	}
	if t.insertErr != nil {
		return 0, t.insertErr
	}
	return t.AccountTx.InsertTransaction(ctx, entry)
}

func (t *faultTx) UpsertCredit(ctx context.Context, address string, amount decimal.Decimal) (int64, error) {
	if t.creditRows != nil {
		return *t.creditRows, nil
	}
	return t.AccountTx.UpsertCredit(ctx, address, amount)
}
