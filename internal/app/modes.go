package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ciblhq/tradeduel/internal/server"
	"github.com/ciblhq/tradeduel/internal/server/handler"
	"github.com/ciblhq/tradeduel/internal/server/ws"
	"github.com/ciblhq/tradeduel/internal/service"
	"github.com/ciblhq/tradeduel/internal/sweep"
)

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	challenges *service.ChallengeService
	prices     *service.PriceService
	chat       *service.ChatService
}

func (a *App) buildServices(deps *Dependencies) *services {
	challengeCfg := service.ChallengeConfig{
		ClaimWindow:  a.cfg.Challenge.ClaimWindow.Duration,
		MinStake:     decimal.NewFromFloat(a.cfg.Challenge.MinStake),
		MaxStake:     decimal.NewFromFloat(a.cfg.Challenge.MaxStake),
		MinTimeframe: a.cfg.Challenge.MinTimeframe.Duration,
		MaxTimeframe: a.cfg.Challenge.MaxTimeframe.Duration,
		SettleGrace:  a.cfg.Sweep.SettleGrace.Duration,
		CreateLimit:  a.cfg.Challenge.CreateLimit,
		ClaimLimit:   a.cfg.Challenge.ClaimLimit,
	}

	return &services{
		challenges: service.NewChallengeService(
			deps.ChallengeStore, deps.ProfileStore, deps.RateLimiter,
			deps.SignalBus, deps.AuditStore, deps.Notifier,
			challengeCfg, a.logger,
		),
		prices: service.NewPriceService(deps.QuoteCache, deps.Jupiter, deps.SignalBus, a.logger),
		chat:   service.NewChatService(deps.ChatStore, deps.RateLimiter, deps.SignalBus, a.logger),
	}
}

// ServeMode runs the HTTP API, the WebSocket hub, and the quote refresh loop.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startServer(ctx, g, deps, svcs)
	a.startQuoteFeed(ctx, g, svcs)

	return g.Wait()
}

// SweepMode runs only the background maintenance loop. Deploy alongside one
// or more serve replicas; the distributed lock keeps passes single-flight.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startSweeper(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs everything in one process: API, hub, quote feed, and sweeper.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startServer(ctx, g, deps, svcs)
	a.startQuoteFeed(ctx, g, svcs)
	a.startSweeper(ctx, g, deps, svcs)

	return g.Wait()
}

// startServer adds the HTTP server and WebSocket hub goroutines to the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.cfg.Mode, deps.Pingers, a.logger),
		Challenges: handler.NewChallengeHandler(svcs.challenges, a.logger),
		Chat:       handler.NewChatHandler(svcs.chat, a.logger),
		Prices:     handler.NewPriceHandler(svcs.prices, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		GatewayKey:  a.cfg.Server.GatewayKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startQuoteFeed adds the periodic quote refresh goroutine to the group.
// Failures are logged inside Refresh; the loop only stops with the context.
func (a *App) startQuoteFeed(ctx context.Context, g *errgroup.Group, svcs *services) {
	interval := a.cfg.Jupiter.RefreshInterval.Duration
	if interval <= 0 {
		interval = 10 * time.Second
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				_ = svcs.prices.Refresh(ctx)
			}
		}
	})
}

// startSweeper adds the maintenance loop goroutine to the group.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	sweeper := sweep.New(
		deps.ChallengeStore,
		svcs.challenges,
		deps.LockManager,
		deps.Archiver,
		deps.Notifier,
		deps.SignalBus,
		sweep.Config{
			Interval:     a.cfg.Sweep.Interval.Duration,
			SettleGrace:  a.cfg.Sweep.SettleGrace.Duration,
			ArchiveEvery: a.cfg.Sweep.ArchiveEvery.Duration,
			Retention:    time.Duration(a.cfg.Sweep.RetentionDays) * 24 * time.Hour,
		},
		a.logger,
	)
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
}
