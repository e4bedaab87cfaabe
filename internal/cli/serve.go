package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/truthguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP API",
	Long: `Serve exposes the verification pipeline over HTTP:

  POST /api/verify_text_news     {"content": "..."}
  POST /api/verify_image_news    multipart: file, query
  POST /api/verify_social_news   {"url": "...", "claim": "...", "type": "text|image"}
  GET  /api/history              recent verifications of the X-Account-ID account
  GET  /api/shared/:id           one saved verification
  GET  /api/credits              credit balance of the X-Account-ID account

The same verification routes are also served under /v1/verify/{text,image,social}.

Example:
  truthguard serve --addr :8000 --allowed-origin https://truthguard.example`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8000)")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "allowed request Origin (repeatable; none disables the check)")
	serveCmd.Flags().Bool("credits", false, "meter verifications against account credits")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.allowed_origins", serveCmd.Flags().Lookup("allowed-origin"))
	_ = viper.BindPFlag("credits.enabled", serveCmd.Flags().Lookup("credits"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, os.Stderr)

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "truthguard@" + version,
		})
		if err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(cfg.Server, a.service, server.Options{
		Ledger:       a.ledger,
		History:      a.history,
		HistoryLimit: cfg.History.Limit,
	}, log.With().Str("component", "server").Logger())

	log.Info().
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Bool("credits", cfg.Credits.Enabled).
		Bool("history", cfg.History.Enabled).
		Int("allowed_origins", len(cfg.Server.AllowedOrigins)).
		Msg("starting truthguard")

	return srv.Run(ctx)
}
