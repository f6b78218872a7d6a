package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/blessbot/internal/api"
	"github.com/vietddude/blessbot/internal/control"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the binding and transfer query service",
	Run:   runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) {
	cfg, logs := loadConfig()
	defer logs.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	var fees api.FeeEstimator
	pipeline, client, err := control.OpenPipeline(ctx, cfg.Chain, cfg.Secrets.FunderPrivateKey, stores.Journal)
	if err != nil {
		slog.Warn("Fee estimates disabled", "error", err)
	} else {
		defer client.Close()
		fees = pipeline
	}

	srv := api.New(api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
		APIKey:         cfg.Secrets.APIKey,
	}, stores.Ledger, fees, stores.TransferLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Query service failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutting down query service")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}
}
