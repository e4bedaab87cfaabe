// Package server exposes the verification pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/credits"
	"github.com/ppiankov/truthguard/internal/history"
	"github.com/ppiankov/truthguard/internal/model"
	"github.com/ppiankov/truthguard/internal/verify"
	"github.com/ppiankov/truthguard/internal/worker"
)

// AccountHeader carries the caller's account ID
const AccountHeader = "X-Account-ID"

const shutdownTimeout = 15 * time.Second

// Verifier runs one verification
type Verifier interface {
	Run(ctx context.Context, accountID string, req model.Request) (*verify.Outcome, error)
	Metered() bool
}

// Options holds the optional backends behind the read endpoints
type Options struct {
	Ledger       credits.Ledger
	History      history.Store
	HistoryLimit int
}

// Server is the HTTP API
type Server struct {
	cfg      model.ServerConfig
	engine   *gin.Engine
	verifier Verifier
	ledger   credits.Ledger
	history  history.Store
	limit    int
	clients  *worker.Limiter
	log      zerolog.Logger
}

// New creates the API and registers its routes
func New(cfg model.ServerConfig, verifier Verifier, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   gin.New(),
		verifier: verifier,
		ledger:   opts.Ledger,
		history:  opts.History,
		limit:    opts.HistoryLimit,
		log:      log,
	}
	if cfg.ClientRPS > 0 {
		s.clients = worker.NewLimiter(cfg.ClientRPS, cfg.ClientBurst)
	}
	if cfg.MaxUploadBytes > 0 {
		s.engine.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	s.engine.Use(
		requestID(log),
		accessLog(),
		recovery(),
		originGuard(cfg.AllowedOrigins),
		cors.New(corsConfig(cfg.AllowedOrigins)),
	)
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	text := []gin.HandlerFunc{failure("Failed to process text verification request"), s.rateLimit, s.verifyText}
	image := []gin.HandlerFunc{failure("Failed to process image verification request"), s.rateLimit, s.verifyImage}
	social := []gin.HandlerFunc{failure("Failed to process social media verification request"), s.rateLimit, s.verifySocial}

	api := r.Group("/api")
	{
		api.POST("/verify_text_news", text...)
		api.POST("/verify_image_news", image...)
		api.POST("/verify_social_news", social...)
		api.GET("/history", s.listHistory)
		api.GET("/shared/:id", s.sharedRecord)
		api.GET("/credits", s.balance)
	}

	v1 := r.Group("/v1/verify")
	{
		v1.POST("/text", text...)
		v1.POST("/image", image...)
		v1.POST("/social", social...)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:           []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:           []string{"Origin", "Content-Type", AccountHeader, requestIDHeader},
		ExposeHeaders:          []string{requestIDHeader, "X-Verification-ID", "X-Credits-Remaining"},
		AllowBrowserExtensions: true,
		MaxAge:                 12 * time.Hour,
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
	}
	return cfg
}
