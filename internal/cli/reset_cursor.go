package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/blessbot/internal/control"
	"github.com/vietddude/blessbot/internal/core/cursor"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [mention_id]",
	Short: "Move the mention cursor to a given mention id",
	Long: `Move the mention cursor to a given mention id. Mentions after it are
fetched again on the next cycle; ones already handled stay skipped.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid mention id: %v\n", err)
		os.Exit(1)
	}

	cfg, logs := loadConfig()
	defer logs.Close()

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	if err := cursor.NewManager(stores.Cursor).Reset(ctx, id); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset mention cursor to %d\n", id)
}
