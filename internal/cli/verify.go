package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/verify"
)

var (
	verifyClaim   string
	verifyType    string
	verifyAccount string
	verifyTimeout time.Duration
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a claim, an image or a social media post",
	Long: `Verify runs one verification and prints the result as JSON.

Example:
  truthguard verify text "The moon landing was faked"
  truthguard verify image photo.jpg --claim "Flooding in Venice, March 2024"
  truthguard verify social https://x.com/user/status/1 --type image`,
}

var verifyTextCmd = &cobra.Command{
	Use:   "text <claim>",
	Short: "Verify a text claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(model.TextRequest{Content: args[0]})
	},
}

var verifyImageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Verify an image, optionally against a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		return runVerify(model.ImageRequest{Data: data, FileName: filepath.Base(args[0]), Claim: verifyClaim})
	},
}

var verifySocialCmd = &cobra.Command{
	Use:   "social <url>",
	Short: "Verify a social media post or article by URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(model.SocialRequest{URL: args[0], Claim: verifyClaim, Mode: model.SocialMode(verifyType)})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.AddCommand(verifyTextCmd, verifyImageCmd, verifySocialCmd)

	verifyCmd.PersistentFlags().StringVar(&verifyAccount, "account", "local", "account charged when credits are enabled")
	verifyCmd.PersistentFlags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "overall verification timeout")
	verifyImageCmd.Flags().StringVar(&verifyClaim, "claim", "", "claim about the image")
	verifySocialCmd.Flags().StringVar(&verifyClaim, "claim", "", "claim about the post (default: a generic verification prompt)")
	verifySocialCmd.Flags().StringVar(&verifyType, "type", "text", "verification mode (text, image)")
}

func runVerify(req model.Request) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Verifying %s input with %s/%s...\n", req.Modality(), cfg.AI.Provider, cfg.AI.Model)
	}

	out, err := a.service.Run(ctx, verifyAccount, req)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out.Result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	printSummary(out)
	return nil
}

func printSummary(out *verify.Outcome) {
	if out.Result.IsError() {
		fmt.Fprintf(os.Stderr, "✗ Verification failed: %s\n", out.Result.Reason)
		return
	}
	fmt.Fprintf(os.Stderr, "✓ %s (%d/100)\n", out.Result.Verdict, out.Result.TruthScore)
	if out.RecordID != "" && verbose {
		fmt.Fprintf(os.Stderr, "✓ Saved as %s\n", out.RecordID)
	}
	if out.Credits >= 0 {
		fmt.Fprintf(os.Stderr, "  Credits left: %d\n", out.Credits)
	}
}
