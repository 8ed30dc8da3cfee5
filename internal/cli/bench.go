package cli

import (
	"encoding/json"

	"github.com/sheikh-saqib/transfer-race-ledger/internal/harness"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type BenchOptions struct {
	*RootOptions
	Strategy    string
	Accounts    int
	Initial     int64
	Transfers   int
	Amount      int64
	Concurrency int
	Keep        bool
	JSON        bool
}

func NewBenchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchOptions{RootOptions: rootOpts}
	defaults := harness.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fan out concurrent transfers and reconcile the ledger",
		Long: `Truncates both tables, seeds --accounts accounts with --initial each, sends
--transfers transfers of --amount from 0x0 to every account in turn and then
reconciles balances against the ledger.

The command succeeds even when reconciliation fails; the result is logged.

Example:
  ledger bench --strategy relaxed
  ledger bench --strategy strict --transfers 2000 --store memory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Strategy, "strategy", string(defaults.Strategy), "transfer strategy (strict|relaxed)")
	cmd.Flags().IntVar(&opts.Accounts, "accounts", defaults.Accounts, "number of seeded accounts")
	cmd.Flags().Int64Var(&opts.Initial, "initial", defaults.InitialBalance.IntPart(), "initial balance of each account")
	cmd.Flags().IntVar(&opts.Transfers, "transfers", defaults.Transfers, "number of transfers")
	cmd.Flags().Int64Var(&opts.Amount, "amount", defaults.Amount.IntPart(), "amount of each transfer")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "max in-flight transfers (0 = DB_MAX_CONNECTIONS)")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "do not truncate tables before the run")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the result as JSON on stdout")

	return cmd
}

func runBench(cmd *cobra.Command, opts *BenchOptions) error {
	ctx := cmd.Context()

	strategy, err := ledger.ParseStrategy(opts.Strategy)
	if err != nil {
		return err
	}

	d, err := loadDeps(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			d.logger.Warn("close failed", zap.Error(err))
		}
	}()

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = d.cfg.MaxConnections
	}

	h := harness.New(d.store, d.ledger, d.publisher, d.cfg.VerifyTopic, d.logger)
	result, err := h.Run(ctx, harness.Options{
		Strategy:       strategy,
		Accounts:       opts.Accounts,
		InitialBalance: decimal.NewFromInt(opts.Initial),
		Transfers:      opts.Transfers,
		Amount:         decimal.NewFromInt(opts.Amount),
		Concurrency:    concurrency,
		SkipTruncate:   opts.Keep,
	})
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return nil
}
