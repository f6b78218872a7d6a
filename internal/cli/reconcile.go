package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/blessbot/internal/control"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle journal entries whose on-chain outcome is unknown",
	Long: `Look up receipts for signed, broadcast and unconfirmed transfers and
record their final status. Run this when events are held back with
transfer_needs_reconcile.`,
	Run: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg, logs := loadConfig()
	defer logs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	pipeline, client, err := control.OpenPipeline(ctx, cfg.Chain, cfg.Secrets.FunderPrivateKey, stores.Journal)
	if err != nil {
		slog.Error("Failed to init transfer pipeline", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	report, err := pipeline.Reconcile(ctx)
	if err != nil {
		slog.Error("Reconcile failed", "error", err)
		if report == nil {
			os.Exit(1)
		}
	}

	fmt.Printf("Checked %d: %d confirmed, %d reverted, %d dropped, %d still pending\n",
		report.Checked, len(report.Confirmed), len(report.Reverted), len(report.Dropped), len(report.Pending))
	if len(report.Pending) > 0 {
		printTransfers(report.Pending)
	}
	if err != nil {
		os.Exit(1)
	}
}
