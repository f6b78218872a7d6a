// Package control wires the bot's components together and runs them.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/blessbot/internal/core/config"
	"github.com/vietddude/blessbot/internal/core/cursor"
	"github.com/vietddude/blessbot/internal/core/pending"
	"github.com/vietddude/blessbot/internal/core/ratelimit"
	"github.com/vietddude/blessbot/internal/core/worker"
	"github.com/vietddude/blessbot/internal/fulfillment"
	"github.com/vietddude/blessbot/internal/health"
	redisclient "github.com/vietddude/blessbot/internal/infra/redis"
	"github.com/vietddude/blessbot/internal/infra/social/x"
)

const balanceInterval = 5 * time.Minute

// Components are the running parts of the bot. Lease and Balance are optional.
type Components struct {
	Poller  *worker.Poller
	Health  *health.Server
	Lease   *redisclient.Lease
	Balance func(ctx context.Context) error
}

// Bot runs the polling loop beside its health server.
type Bot struct {
	Components
	closers []func() error
	log     *slog.Logger
}

// New creates a bot from already built components.
func New(c Components) *Bot {
	return &Bot{Components: c, log: slog.Default().With("component", "bot")}
}

// Build wires the bot from configuration.
func Build(ctx context.Context, cfg *config.AppConfig) (*Bot, error) {
	bindReward, err := cfg.Bot.BindRewardAmount()
	if err != nil {
		return nil, err
	}
	blessAmount, err := cfg.Bot.BlessAmountValue()
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	closers = append(closers, stores.Close)
	fail := func(err error) (*Bot, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	pipeline, client, err := OpenPipeline(ctx, cfg.Chain, cfg.Secrets.FunderPrivateKey, stores.Journal)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { client.Close(); return nil })

	var lease *redisclient.Lease
	if cfg.Redis.Enabled() {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rc.Close)
		lease = rc.NewLease(pipeline.Funder(), cfg.Redis.LeaseTTL)
	}

	xc := x.New(cfg.X, x.Credentials{Username: cfg.Secrets.XUsername, Password: cfg.Secrets.XPassword})
	cursorMgr := cursor.NewManager(stores.Cursor)

	orch := fulfillment.New(fulfillment.Deps{
		Ledger:    stores.Ledger,
		Journal:   stores.Journal,
		Limiter:   ratelimit.New(stores.Ledger, ratelimit.WithWindow(cfg.Bot.RateLimitWindow)),
		Pending:   pending.NewQueue(stores.Ledger),
		Transfers: pipeline,
		Cursor:    cursorMgr,
		Source:    xc,
		Replies:   xc,
	}, fulfillment.Config{
		BotHandle:     cfg.Bot.Handle,
		BindReward:    bindReward,
		BlessAmount:   blessAmount,
		ExplorerTxURL: cfg.Bot.ExplorerTxURL,
		Images:        cfg.Bot.Images,
	})

	poller := worker.NewPoller(orch, cfg.Bot.PollInterval)

	var pinger health.Pinger
	if stores.DB != nil {
		pinger = stores.DB
		stores.DB.StartMetricsCollector(ctx)
	}
	monitor := health.NewMonitor(pinger, client, stores.Journal, poller)

	bot := New(Components{
		Poller: poller,
		Health: health.NewServer(monitor, cfg.Server.Port),
		Lease:  lease,
		Balance: func(ctx context.Context) error {
			_, err := pipeline.Balance(ctx)
			return err
		},
	})
	bot.closers = closers
	return bot, nil
}

// Run blocks until ctx is cancelled or a component fails. Losing the lease
// stops the bot.
func (b *Bot) Run(ctx context.Context) error {
	if b.Lease != nil {
		if err := b.Lease.Acquire(ctx); err != nil {
			return fmt.Errorf("failed to acquire lease: %w", err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := b.Lease.Release(releaseCtx); err != nil {
				b.log.Warn("Failed to release lease", "error", err)
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Poller.Start(ctx)
	})

	if b.Lease != nil {
		g.Go(func() error {
			return b.Lease.Keep(ctx)
		})
	}

	if b.Health != nil {
		g.Go(func() error {
			if err := b.Health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return b.Health.Stop(shutdownCtx)
		})
	}

	if b.Balance != nil {
		g.Go(func() error {
			b.watchBalance(ctx)
			return nil
		})
	}

	b.log.Info("Bot started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	b.log.Info("Bot stopped", "error", err)
	return err
}

func (b *Bot) watchBalance(ctx context.Context) {
	ticker := time.NewTicker(balanceInterval)
	defer ticker.Stop()

	for {
		if err := b.Balance(ctx); err != nil && ctx.Err() == nil {
			b.log.Warn("Failed to read funder balance", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases connections opened by Build.
func (b *Bot) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}
