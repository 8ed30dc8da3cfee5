package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

const defaultMaxOpenConns = 128

// Options tunes the connection pool and the isolation level every unit of
// work is opened with.
type Options struct {
	MaxOpenConns int
	Isolation    sql.IsolationLevel
}

type PostgresAccountStore struct {
	db        *sql.DB
	isolation sql.IsolationLevel
}

func NewPostgresAccountStore(db *sql.DB, isolation sql.IsolationLevel) *PostgresAccountStore {
	return &PostgresAccountStore{
		db:        db,
		isolation: isolation,
	}
}

// Open connects through lib/pq, bounds the pool and makes sure both tables exist.
// Units of work beyond MaxOpenConns wait for a connection to be released.
func Open(ctx context.Context, dsn string, opts Options) (*PostgresAccountStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresAccountStore(db, opts.Isolation)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresAccountStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresAccountStore) Close() error {
	return p.db.Close()
}

func (p *PostgresAccountStore) Begin(ctx context.Context) (interfaces.AccountTx, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: p.isolation})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

func (p *PostgresAccountStore) CreateAccount(ctx context.Context, address string, initial decimal.Decimal) (bool, error) {
	const query = `INSERT INTO accounts (address, balance)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING`

	res, err := p.db.ExecContext(ctx, query, address, initial)
	if err != nil {
		return false, fmt.Errorf("create account %s: %w", address, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (p *PostgresAccountStore) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return getBalance(ctx, p.db, address)
}

func (p *PostgresAccountStore) AccountActivity(ctx context.Context) ([]models.AccountActivity, error) {
	const query = `SELECT a.address, a.balance,
		COALESCE((SELECT SUM(t.amount) FROM "transaction" t WHERE t.to_address = a.address), 0) AS credit,
		COALESCE((SELECT SUM(t.amount) FROM "transaction" t WHERE t.from_address = a.address), 0) AS debit
	FROM accounts a
	ORDER BY a.address`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("account activity: %w", err)
	}
	defer rows.Close()

	var activity []models.AccountActivity
	for rows.Next() {
		var a models.AccountActivity
		if err := rows.Scan(&a.Address, &a.Balance, &a.Credit, &a.Debit); err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activity, nil
}

func (p *PostgresAccountStore) LedgerEntries(ctx context.Context) ([]models.Transaction, error) {
	const query = `SELECT tx_hash, from_address, to_address, amount, created_at
	FROM "transaction"
	ORDER BY created_at, tx_hash`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Transaction
	for rows.Next() {
		var entry models.Transaction
		err := rows.Scan(
			&entry.TxHash,
			&entry.FromAddress,
			&entry.ToAddress,
			&entry.Amount,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PostgresAccountStore) Truncate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE "transaction", accounts`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBalance(ctx context.Context, q queryer, address string) (decimal.Decimal, error) {
	const query = `SELECT balance FROM accounts WHERE address = $1`

	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, query, address).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, address)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", address, err)
	}
	return balance, nil
}

// ParseIsolation maps a configured name such as "read committed" or
// "serializable" to its database/sql level. Empty means the server default.
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	normalized := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(name)))

	switch normalized {
	case "", "default":
		return sql.LevelDefault, nil
	case "read uncommitted":
		return sql.LevelReadUncommitted, nil
	case "read committed":
		return sql.LevelReadCommitted, nil
	case "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", name)
	}
}

// IsSerializationFailure reports whether err is a serialization conflict or a
// deadlock abort raised by the server.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

var _ interfaces.AccountStore = (*PostgresAccountStore)(nil)
