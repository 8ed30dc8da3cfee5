package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage"
	"go.uber.org/zap"
)

// Strategy selects how a transfer touches the account rows.
type Strategy string

const (
	// Strict records the ledger entry first and debits through a guarded
	// update, so the balance check and the decrement are one statement.
	Strict Strategy = "strict"
	// Relaxed reads the balance, checks it in process and then writes
	// unconditionally. Concurrent transfers from one account can overdraw it.
	Relaxed Strategy = "relaxed"
)

func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case Strict:
		return Strict, nil
	case Relaxed:
		return Relaxed, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want %q or %q)", name, Strict, Relaxed)
	}
}

// Status is the terminal state of a transfer that did not fail.
type Status int

const (
	StatusCommitted Status = iota + 1
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Status       Status
	RowsAffected int64
}

func (o Outcome) Committed() bool {
	return o.Status == StatusCommitted
}

type transferFunc func(ctx context.Context, tx interfaces.AccountTx, req models.TransferRequest) (Outcome, error)

func (l *Ledger) strategyFunc(strategy Strategy) (transferFunc, error) {
	switch strategy {
	case Strict:
		return l.strictTransfer, nil
	case Relaxed:
		return l.relaxedTransfer, nil
	default:
		return nil, otherError(fmt.Sprintf("unknown strategy %q", strategy))
	}
}

func (l *Ledger) strictTransfer(ctx context.Context, tx interfaces.AccountTx, req models.TransferRequest) (Outcome, error) {
	inserted, err := tx.InsertTransaction(ctx, req.Entry(l.now()))
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if inserted == 0 {
		l.logger.Info("transaction already exists", zap.String("tx_hash", req.TxHash))
		return Outcome{Status: StatusSkipped}, nil
	}

	debited, err := tx.GuardedDebit(ctx, req.From, req.Amount)
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if debited == 0 {
		// The guard also fails for a sender that was never created.
		if _, err := tx.GetBalance(ctx, req.From); err != nil {
			if errors.Is(err, storage.ErrAccountNotFound) {
				return Outcome{}, accountNotFound(req.From)
			}
			return Outcome{}, storeError(err)
		}
		l.logger.Info("insufficient funds", zap.String("tx_hash", req.TxHash), zap.String("from", req.From))
		return Outcome{}, insufficientFunds(req.From)
	}

	credited, err := tx.UpsertCredit(ctx, req.To, req.Amount)
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if credited == 0 {
		return Outcome{}, otherError("credit failed")
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, storeError(err)
	}
	return Outcome{Status: StatusCommitted, RowsAffected: debited}, nil
}

// relaxedTransfer is kept unguarded on purpose: it is the comparison
// baseline for strictTransfer and must stay racy.
func (l *Ledger) relaxedTransfer(ctx context.Context, tx interfaces.AccountTx, req models.TransferRequest) (Outcome, error) {
	balance, err := tx.GetBalance(ctx, req.From)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return Outcome{}, accountNotFound(req.From)
		}
		return Outcome{}, storeError(err)
	}

	if balance.LessThan(req.Amount) {
		l.logger.Info("insufficient funds", zap.String("tx_hash", req.TxHash), zap.String("from", req.From))
		return Outcome{}, insufficientFunds(req.From)
	}

	// Not conditioned on the balance read above.
	debited, err := tx.UnconditionalAdjust(ctx, req.From, req.Amount.Neg())
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if debited != 1 {
		return Outcome{}, otherError("sender update failed")
	}

	credited, err := tx.UnconditionalAdjust(ctx, req.To, req.Amount)
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if credited != 1 {
		return Outcome{}, otherError("recipient update failed")
	}

	inserted, err := tx.InsertTransaction(ctx, req.Entry(l.now()))
	if err != nil {
		return Outcome{}, storeError(err)
	}
	if inserted == 0 {
		l.logger.Info("transaction already exists", zap.String("tx_hash", req.TxHash))
		return Outcome{Status: StatusSkipped}, nil
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, storeError(err)
	}
	return Outcome{Status: StatusCommitted, RowsAffected: inserted}, nil
}
