package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/transfer-race-ledger/internal/config"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/events"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/logging"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/storage/postgres"
	"go.uber.org/zap"
)

// deps is everything a command needs, built from Config.
type deps struct {
	cfg       config.Config
	logger    *zap.Logger
	store     interfaces.AccountStore
	publisher interfaces.EventPublisher
	ledger    *ledger.Ledger
	closers   []func() error
}

func loadDeps(ctx context.Context, opts *RootOptions) (*deps, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if opts.Store != "" {
		cfg.Store = opts.Store
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, logger: logger}

	switch cfg.Store {
	case config.StoreMemory:
		d.store = memory.NewMemoryAccountStore(cfg.MaxConnections)
	default:
		isolation, err := postgres.ParseIsolation(cfg.Isolation)
		if err != nil {
			return nil, err
		}
		store, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			MaxOpenConns: cfg.MaxConnections,
			Isolation:    isolation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		d.store = store
		d.closers = append(d.closers, store.Close)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers)
		d.publisher = publisher
		d.closers = append(d.closers, publisher.Close)
	} else {
		d.publisher = events.NopPublisher{}
	}

	d.ledger = ledger.NewLedger(d.store,
		ledger.WithLogger(logger),
		ledger.WithPublisher(d.publisher, cfg.TransferTopic),
	)

	logger.Info("dependencies ready",
		zap.String("store", cfg.Store),
		zap.String("isolation", cfg.Isolation),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
	)
	return d, nil
}

func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	_ = d.logger.Sync()
	return errors.Join(errs...)
}
