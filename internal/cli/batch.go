package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/verify"
	"github.com/ppiankov/truthguard/internal/worker"
)

var (
	batchOutput  string
	batchTimeout time.Duration
	batchAccount string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many text claims from a file in parallel",
	Long: `Batch verifies text claims concurrently:
- Read claims from the input file (one per line, # comments and blanks skipped)
- Verify them with a configurable number of workers
- Write one JSON object per claim (JSONL), in input order

Example:
  truthguard batch claims.txt
  truthguard batch claims.txt --concurrency 8 --output results.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 0, "number of concurrent workers (default from concurrency.workers)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "-", "JSONL output path (- for stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchAccount, "account", "local", "account charged when credits are enabled")

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  TruthGuard Batch Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Model:        %s/%s\n", cfg.AI.Provider, cfg.AI.Model)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	processor := worker.NewBatchProcessor(claimVerifier(a.service, batchAccount), cfg.Concurrency.Workers)

	fmt.Fprintf(os.Stderr, "⚙️  Verifying claims...\n")
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	out, closeOut, err := openOutput(batchOutput)
	if err != nil {
		return err
	}
	defer closeOut()
	if err := worker.WriteJSONL(out, results); err != nil {
		return err
	}

	var ok, failed, errored int
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", truncate(r.Claim, 60), r.Error)
		case r.Result.IsError():
			errored++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", truncate(r.Claim, 60), r.Result.Reason)
		default:
			ok++
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Verdicts:  %d\n", ok)
	fmt.Fprintf(os.Stderr, "  Errors:    %d\n", errored)
	fmt.Fprintf(os.Stderr, "  Rejected:  %d\n", failed)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// claimVerifier adapts the service to the batch worker
func claimVerifier(svc *verify.Service, accountID string) worker.ClaimVerifier {
	return worker.VerifierFunc(func(ctx context.Context, claim string) (model.VerificationResult, error) {
		out, err := svc.VerifyText(ctx, accountID, claim)
		if err != nil {
			return model.VerificationResult{}, err
		}
		return out.Result, nil
	})
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
