package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Store   string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Concurrent transfer ledger",
		Long: `Runs fund transfers between accounts against Postgres (or an in-memory store)
and reconciles balances against the ledger.

Configuration comes from the environment (DATABASE_URL, DB_ISOLATION, ...),
optionally loaded from a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "override LEDGER_STORE (postgres|memory)")

	cmd.AddCommand(NewBenchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}
