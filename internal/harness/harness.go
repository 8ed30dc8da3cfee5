// Package harness reproduces the benchmark run: reset the tables, seed the
// accounts, fan out transfers from the first account and reconcile.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/events"
	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	modelevents "github.com/sheikh-saqib/transfer-race-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultVerificationTopic = "ledger_verification"

type Options struct {
	Strategy       ledger.Strategy
	Accounts       int
	InitialBalance decimal.Decimal
	Transfers      int
	Amount         decimal.Decimal
	Concurrency    int
	// SkipTruncate keeps existing rows instead of starting from empty tables.
	SkipTruncate bool
}

// DefaultOptions mirrors the reference workload: 100 accounts funded with
// 1000, 10000 transfers of 3 out of 0x0.
func DefaultOptions() Options {
	return Options{
		Strategy:       ledger.Strict,
		Accounts:       100,
		InitialBalance: decimal.NewFromInt(1000),
		Transfers:      10000,
		Amount:         decimal.NewFromInt(3),
		Concurrency:    128,
	}
}

func (o Options) validate() error {
	switch {
	case o.Accounts < 1:
		return errors.New("at least one account is required")
	case o.Transfers < 0:
		return errors.New("transfers must not be negative")
	case !o.Amount.IsPositive():
		return errors.New("amount must be positive")
	case o.InitialBalance.IsNegative():
		return errors.New("initial balance must not be negative")
	}
	_, err := ledger.ParseStrategy(string(o.Strategy))
	return err
}

type Result struct {
	RunID   string         `json:"run_id"`
	Source  string         `json:"source"`
	Summary ledger.Summary `json:"summary"`
	Report  ledger.Report  `json:"report"`
}

// Consistent is true when reconciliation found no discrepancy and no account
// went negative.
func (r Result) Consistent() bool {
	return r.Report.Consistent(decimal.Zero) && r.Report.Solvent()
}

type Harness struct {
	store     interfaces.AccountStore
	ledger    *ledger.Ledger
	publisher interfaces.EventPublisher
	topic     string
	logger    *zap.Logger
}

func New(store interfaces.AccountStore, l *ledger.Ledger, publisher interfaces.EventPublisher, topic string, logger *zap.Logger) *Harness {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if topic == "" {
		topic = DefaultVerificationTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{store: store, ledger: l, publisher: publisher, topic: topic, logger: logger}
}

// Run returns an error only when setup fails. An inconsistent ledger is a
// reported result, not an error.
func (h *Harness) Run(ctx context.Context, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, fmt.Errorf("invalid options: %w", err)
	}

	runID := uuid.NewString()
	logger := h.logger.With(zap.String("run_id", runID), zap.String("strategy", string(opts.Strategy)))

	if !opts.SkipTruncate {
		if err := h.store.Truncate(ctx); err != nil {
			return Result{}, fmt.Errorf("clean up: %w", err)
		}
	}

	addresses := make([]string, 0, opts.Accounts)
	for i := 0; i < opts.Accounts; i++ {
		address := ledger.Address(i)
		if _, err := h.ledger.CreateAccount(ctx, address, opts.InitialBalance); err != nil {
			return Result{}, fmt.Errorf("add account %s: %w", address, err)
		}
		addresses = append(addresses, address)
	}
	logger.Info("accounts seeded", zap.Int("accounts", len(addresses)), zap.Stringer("initial", opts.InitialBalance))

	source := addresses[0]
	requests := ledger.FanOutPlan(source, addresses, opts.Transfers, opts.Amount)

	started := time.Now()
	summary := ledger.NewDriver(h.ledger, opts.Concurrency, logger).Run(ctx, opts.Strategy, requests)
	logger.Info("transfers finished",
		zap.Int("committed", summary.Committed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(started)),
	)

	report, err := ledger.NewVerifier(h.store).Verify(ctx, ledger.UniformFunding(opts.InitialBalance))
	if err != nil {
		return Result{}, fmt.Errorf("verify: %w", err)
	}

	result := Result{RunID: runID, Source: source, Summary: summary, Report: report}
	h.logResult(logger, result)
	h.publishResult(ctx, logger, opts, result)
	return result, nil
}

func (h *Harness) logResult(logger *zap.Logger, result Result) {
	fields := []zap.Field{
		zap.Stringer("discrepancy", result.Report.Discrepancy),
		zap.Stringer("overdraft", result.Report.Overdraft),
	}
	if source, ok := result.Report.Account(result.Source); ok {
		fields = append(fields, zap.String("source", source.Address), zap.Stringer("source_balance", source.Balance))
	}

	if result.Consistent() {
		logger.Info("account consistency verified", fields...)
		return
	}
	logger.Error("account consistency verification failed", fields...)
}

func (h *Harness) publishResult(ctx context.Context, logger *zap.Logger, opts Options, result Result) {
	event := modelevents.VerificationCompleted{
		EventID:     uuid.NewString(),
		RunID:       result.RunID,
		Strategy:    string(opts.Strategy),
		Accounts:    len(result.Report.Accounts),
		Committed:   result.Summary.Committed,
		Failed:      result.Summary.Failed,
		Discrepancy: result.Report.Discrepancy,
		Overdraft:   result.Report.Overdraft,
		Consistent:  result.Consistent(),
		OccurredAt:  time.Now(),
	}
	if err := h.publisher.Publish(ctx, h.topic, result.RunID, event); err != nil {
		logger.Warn("publish verification event failed", zap.Error(err))
	}
}
