package main

import (
	"context"
	"log"
	"time"
	_ "time/tzdata"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/glabrego/newsdesk-cli/internal/app"
	"github.com/glabrego/newsdesk-cli/internal/config"
	"github.com/glabrego/newsdesk-cli/internal/feedsync"
	"github.com/glabrego/newsdesk-cli/internal/logging"
	"github.com/glabrego/newsdesk-cli/internal/metrics"
	"github.com/glabrego/newsdesk-cli/internal/newsapi"
	"github.com/glabrego/newsdesk-cli/internal/notify"
	"github.com/glabrego/newsdesk-cli/internal/storage"
	"github.com/glabrego/newsdesk-cli/internal/tui"
	"github.com/glabrego/newsdesk-cli/internal/tui/view"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, logFile, err := logging.Open(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer logFile.Close()

	repo, err := storage.NewRepository(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	defer repo.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer initCancel()

	if err := repo.Init(initCtx); err != nil {
		log.Fatalf("storage schema error: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := newsapi.NewClient(cfg.BaseURL, cfg.Session, cfg.CSRFToken,
		newsapi.WithRateLimit(cfg.RateLimit),
		newsapi.WithLocation(loc),
		newsapi.WithLogger(logger),
	)
	service := app.NewService(client, repo, logger)

	recorder := metrics.NewRecorder()
	grid := view.NewGrid()
	engine := feedsync.New(cfg.Capacity, notify.New(cfg.NotifyDuration), grid,
		feedsync.WithLogger(logger),
		feedsync.WithRecorder(recorder),
		feedsync.WithPage(cfg.Page),
	)

	cacheLoadStart := time.Now()
	snap, ok, err := service.LoadCached(initCtx)
	if err != nil {
		log.Fatalf("cannot load cached news: %v", err)
	}
	if ok {
		engine.Restore(snap.Items, snap.Totals)
	}
	logger.Info("startup cache", "items", len(snap.Items), "saved_at", snap.SavedAt, "duration", time.Since(cacheLoadStart))

	model := tui.NewModel(service, engine, grid, tui.Options{
		PollInterval: cfg.PollInterval,
		Query:        cfg.Query,
		Location:     loc,
		Logger:       logger,
		Recorder:     recorder,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		return err
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			return recorder.Serve(ctx, cfg.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
