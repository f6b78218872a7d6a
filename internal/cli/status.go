package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/blessbot/internal/control"
	"github.com/vietddude/blessbot/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the mention cursor, funder account and unsettled transfers",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, logs := loadConfig()
	defer logs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	c, err := stores.Cursor.Get(ctx, domain.MentionCursor)
	switch {
	case err != nil:
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	case c == nil:
		_, _ = fmt.Fprintln(w, "CURSOR\t0\t(never saved)")
	default:
		_, _ = fmt.Fprintf(w, "CURSOR\t%d\t%s\n", c.LastEventID, c.UpdatedAt.Format(time.RFC3339))
	}

	pipeline, client, err := control.OpenPipeline(ctx, cfg.Chain, cfg.Secrets.FunderPrivateKey, stores.Journal)
	if err != nil {
		slog.Warn("Funder unavailable", "error", err)
	} else {
		defer client.Close()
		token := pipeline.Token()
		_, _ = fmt.Fprintf(w, "FUNDER\t%s\tchain %d\n", pipeline.Funder(), pipeline.ChainID())
		_, _ = fmt.Fprintf(w, "NONCE\t%d\t\n", pipeline.Nonce())
		if bal, err := pipeline.Balance(ctx); err == nil {
			_, _ = fmt.Fprintf(w, "BALANCE\t%s\t%s\n", bal.String(), token.Symbol)
		}
	}
	_ = w.Flush()

	open, err := stores.Journal.ListByStatus(ctx,
		domain.OutboundSigned, domain.OutboundBroadcast, domain.OutboundUnconfirmed)
	if err != nil {
		slog.Error("Failed to list journal", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d unsettled transfers\n", len(open))
	if len(open) == 0 {
		return
	}
	printTransfers(open)
}

func printTransfers(ts []*domain.OutboundTransfer) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NONCE\tEVENT\tTO\tAMOUNT\tSTATUS\tTX")
	for _, t := range ts {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			t.Nonce, t.EventID, t.ToAddress, t.Amount.String(), t.Status, t.TxHash)
	}
	_ = w.Flush()
}
