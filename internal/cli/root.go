package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/blessbot/internal/control"
	"github.com/vietddude/blessbot/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "blessbot",
	Short: "Blessing bot for X mentions",
	Long:  `Blessbot turns X mentions into wallet bindings and token blessings.`,
	Run:   runBot,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file, then installs the logger.
// It exits the process on failure.
func loadConfig() (*config.AppConfig, io.Closer) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg, config.SetupLogging(cfg.Logging, isDebug)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runBot(cmd *cobra.Command, args []string) {
	cfg, logs := loadConfig()
	defer logs.Close()

	ctx, cancel := signalContext()
	defer cancel()

	bot, err := control.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize bot", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	slog.Info("Bot starting", "config", cfgPath, "handle", cfg.Bot.Handle, "interval", cfg.Bot.PollInterval)
	if err := bot.Run(ctx); err != nil {
		slog.Error("Bot exited", "error", err)
		os.Exit(1)
	}
}
