package interfaces

import (
	"context"

	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// AccountStore owns the account rows and the ledger table.
// Every transfer runs inside one AccountTx obtained from Begin.
type AccountStore interface {
	Begin(ctx context.Context) (AccountTx, error)
	CreateAccount(ctx context.Context, address string, initial decimal.Decimal) (bool, error)
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	AccountActivity(ctx context.Context) ([]models.AccountActivity, error)
	LedgerEntries(ctx context.Context) ([]models.Transaction, error)
	Truncate(ctx context.Context) error
}

// AccountTx is a single atomic unit of work. Mutating methods return the
// number of rows they affected.
type AccountTx interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	// GuardedDebit subtracts amount only when balance >= amount, in one statement.
	GuardedDebit(ctx context.Context, address string, amount decimal.Decimal) (int64, error)
	UnconditionalAdjust(ctx context.Context, address string, delta decimal.Decimal) (int64, error)
	// UpsertCredit creates the account when absent, then adds amount.
	UpsertCredit(ctx context.Context, address string, amount decimal.Decimal) (int64, error)
	// InsertTransaction is a no-op returning 0 when the tx hash already exists.
	InsertTransaction(ctx context.Context, entry models.Transaction) (int64, error)
	Commit() error
	Rollback() error
}
