package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/blessbot/internal/infra/social/x"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to X and save the browser session",
	Run:   runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	cfg, logs := loadConfig()
	defer logs.Close()

	ctx, cancel := signalContext()
	defer cancel()

	client := x.New(cfg.X, x.Credentials{Username: cfg.Secrets.XUsername, Password: cfg.Secrets.XPassword})
	if err := client.Login(ctx); err != nil {
		slog.Error("Login failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session saved")
}
