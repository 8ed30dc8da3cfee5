package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/events"
	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	modelevents "github.com/sheikh-saqib/transfer-race-ledger/internal/models/events"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultTransferTopic = "transfer_committed"

// Ledger runs transfers against an AccountStore. It holds no balance state of
// its own; every Transfer owns exactly one unit of work.
type Ledger struct {
	store     interfaces.AccountStore
	publisher interfaces.EventPublisher
	topic     string
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Ledger)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPublisher emits a TransferCommitted event on topic after each commit.
func WithPublisher(publisher interfaces.EventPublisher, topic string) Option {
	return func(l *Ledger) {
		if publisher != nil {
			l.publisher = publisher
		}
		if topic != "" {
			l.topic = topic
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLedger(store interfaces.AccountStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		publisher: events.NopPublisher{},
		topic:     DefaultTransferTopic,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Transfer moves req.Amount from req.From to req.To using strategy inside a
// fresh unit of work. Any error, and a Skipped outcome, roll the unit back.
// Failures are never retried here; re-invoking with the same tx hash is safe
// under Strict.
func (l *Ledger) Transfer(ctx context.Context, strategy Strategy, req models.TransferRequest) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{}, err
	}

	run, err := l.strategyFunc(strategy)
	if err != nil {
		return Outcome{}, err
	}

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return Outcome{}, storeError(err)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			_ = tx.Rollback()
			panic(recovered)
		}
	}()

	outcome, err := run(ctx, tx, req)
	if err != nil || !outcome.Committed() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, storage.ErrTxDone) {
			l.logger.Warn("rollback failed", zap.String("tx_hash", req.TxHash), zap.Error(rbErr))
		}
		return outcome, err
	}

	l.publishCommitted(ctx, strategy, req)
	return outcome, nil
}

// CreateAccount is idempotent: it reports false for an existing address.
func (l *Ledger) CreateAccount(ctx context.Context, address string, initial decimal.Decimal) (bool, error) {
	if strings.TrimSpace(address) == "" {
		return false, otherError("address is required")
	}
	if initial.IsNegative() {
		return false, otherError("initial balance must not be negative")
	}

	created, err := l.store.CreateAccount(ctx, address, initial)
	if err != nil {
		return false, storeError(err)
	}
	return created, nil
}

func (l *Ledger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	balance, err := l.store.GetBalance(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return decimal.Zero, accountNotFound(address)
		}
		return decimal.Zero, storeError(err)
	}
	return balance, nil
}

func (l *Ledger) GetLedgerEntries(ctx context.Context) ([]models.Transaction, error) {
	entries, err := l.store.LedgerEntries(ctx)
	if err != nil {
		return []models.Transaction{}, storeError(err)
	}
	return entries, nil
}

func (l *Ledger) publishCommitted(ctx context.Context, strategy Strategy, req models.TransferRequest) {
	event := modelevents.TransferCommitted{
		EventID:     uuid.NewString(),
		TxHash:      req.TxHash,
		Strategy:    string(strategy),
		FromAddress: req.From,
		ToAddress:   req.To,
		Amount:      req.Amount,
		OccurredAt:  l.now(),
	}
	// The transfer is already committed; a lost event is only logged.
	if err := l.publisher.Publish(ctx, l.topic, req.TxHash, event); err != nil {
		l.logger.Warn("publish transfer event failed", zap.String("tx_hash", req.TxHash), zap.Error(err))
	}
}

func validateRequest(req models.TransferRequest) error {
	switch {
	case strings.TrimSpace(req.TxHash) == "":
		return otherError("tx hash is required")
	case strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "":
		return otherError("from and to addresses are required")
	case !req.Amount.IsPositive():
		return otherError("amount must be positive")
	case !req.Amount.IsInteger():
		return otherError("amount must be a whole number")
	}
	return nil
}
