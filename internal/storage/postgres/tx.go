package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return getBalance(ctx, t.tx, address)
}

func (t *postgresTx) GuardedDebit(ctx context.Context, address string, amount decimal.Decimal) (int64, error) {
	const query = `UPDATE accounts
	SET balance = balance - $1, updated_at = now()
	WHERE address = $2 AND balance >= $1`

	return t.exec(ctx, "guarded debit", query, amount, address)
}

func (t *postgresTx) UnconditionalAdjust(ctx context.Context, address string, delta decimal.Decimal) (int64, error) {
	const query = `UPDATE accounts
	SET balance = balance + $1, updated_at = now()
	WHERE address = $2`

	return t.exec(ctx, "adjust", query, delta, address)
}

func (t *postgresTx) UpsertCredit(ctx context.Context, address string, amount decimal.Decimal) (int64, error) {
	const query = `INSERT INTO accounts (address, balance, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (address) DO UPDATE
	SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()`

	return t.exec(ctx, "upsert credit", query, address, amount)
}

func (t *postgresTx) InsertTransaction(ctx context.Context, entry models.Transaction) (int64, error) {
	const query = `INSERT INTO "transaction" (tx_hash, from_address, to_address, amount, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT DO NOTHING`

	return t.exec(ctx, "insert transaction", query,
		entry.TxHash, entry.FromAddress, entry.ToAddress, entry.Amount, entry.CreatedAt)
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (t *postgresTx) exec(ctx context.Context, op string, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

var _ interfaces.AccountTx = (*postgresTx)(nil)
