// Package api serves the wallet frontend: handle resolution, fee quotes and
// the transfer activity feed.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/chain/evm"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

// DefaultChainID is Base mainnet.
const DefaultChainID = 8453

// BindingReader looks up wallet bindings.
type BindingReader interface {
	GetBinding(ctx context.Context, handle string) (*domain.Binding, error)
}

// FeeEstimator prices transfers from the funder account.
type FeeEstimator interface {
	EstimateFee(ctx context.Context, to string, amount decimal.Decimal) (*evm.FeeEstimate, error)
	EstimateNativeFee(ctx context.Context) (*evm.FeeEstimate, error)
	Token() evm.TokenInfo
}

// Config holds the query service settings.
type Config struct {
	Port           int
	AllowedOrigins []string
	APIKey         string
}

// Server is the query service.
type Server struct {
	bindings  BindingReader
	fees      FeeEstimator
	transfers storage.TransferLogRepository
	apiKey    string
	origins   map[string]bool
	now       func() time.Time
	log       *slog.Logger

	router http.Handler
	server *http.Server
}

// New builds the router. fees may be nil when no chain is configured.
func New(cfg Config, bindings BindingReader, fees FeeEstimator, transfers storage.TransferLogRepository) *Server {
	s := &Server{
		bindings:  bindings,
		fees:      fees,
		transfers: transfers,
		apiKey:    cfg.APIKey,
		origins:   make(map[string]bool),
		now:       time.Now,
		log:       slog.Default().With("component", "api"),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.log.Info("Query service listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.cors)

	r.Post("/resolve", s.Resolve)
	r.Post("/fee-estimate", s.FeeEstimate)
	r.With(s.requireKey).Post("/transfers", s.LogTransfer)
	r.Get("/transfers/{hash}", s.HasTransfer)
	r.Get("/activity", s.Activity)
	return r
}
