package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/model"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and top up account credits",
	Long: `Credits manages the ledger configured under credits.backend.
The memory backend only lives as long as one process, so these commands
are meant for the postgres and redis backends.

Example:
  truthguard credits balance alice
  truthguard credits add alice 50`,
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance <account>",
	Short: "Show an account's balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l credits.Ledger) error {
			bal, err := l.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d credits\n", args[0], bal)
			return nil
		})
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add <account> <amount>",
	Short: "Add credits to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[1])
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer: %q", args[1])
		}
		return withLedger(func(ctx context.Context, l credits.Ledger) error {
			bal, err := l.Add(ctx, args[0], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Added %d credits\n", amount)
			fmt.Printf("%s: %d credits\n", args[0], bal)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsBalanceCmd, creditsAddCmd)
}

func withLedger(fn func(ctx context.Context, l credits.Ledger) error) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	// The ledger is managed here even when metering of requests is off
	cfg.Credits.Enabled = true
	if cfg.Credits.Backend == "" || cfg.Credits.Backend == "memory" {
		fmt.Fprintf(os.Stderr, "Warning: credits.backend is memory; changes are not persisted\n")
	}
	// Only the ledger's connection is needed
	cfg.History = model.HistoryConfig{}
	cfg.Cache.Backend = "memory"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	ledger, err := newLedger(cfg.Credits, b)
	if err != nil {
		return err
	}
	return fn(ctx, ledger)
}
