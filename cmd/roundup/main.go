package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0xlunar/roundup/internal/api"
	"github.com/0xlunar/roundup/internal/config"
	"github.com/0xlunar/roundup/internal/controllers"
	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/scheduler"
	"github.com/0xlunar/roundup/internal/selector"
	"github.com/0xlunar/roundup/internal/services/aggregator"
	"github.com/0xlunar/roundup/internal/services/eztv"
	"github.com/0xlunar/roundup/internal/services/imdb"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/services/plex"
	"github.com/0xlunar/roundup/internal/services/rarbg"
	"github.com/0xlunar/roundup/internal/services/torrentclient"
	"github.com/0xlunar/roundup/internal/services/yts"
	"github.com/0xlunar/roundup/internal/utils"
)

// sourceTimeout caps each index's share of a search fan-out
const sourceTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Roundup")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Load blacklist
	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist file, using built-in terms only")
		blacklist = utils.NewBlacklist(nil)
	} else {
		logger.Info("Blacklist loaded")
	}

	// 5. Probe for a reachable torrent client
	var clients []torrentclient.Client
	if qb := torrentclient.NewQBittorrent(cfg, logger); qb != nil {
		clients = append(clients, qb)
	}
	if tr := torrentclient.NewTransmission(cfg, logger); tr != nil {
		clients = append(clients, tr)
	}
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	gateway, err := torrentclient.Probe(probeCtx, logger, clients...)
	probeCancel()
	if err != nil {
		return err
	}

	// 6. Initialize services
	plexClient := plex.NewClient(cfg, logger)
	imdbClient := imdb.NewClient(logger)

	var sources []indexer.Searcher
	if cfg.YTSEnabled {
		sources = append(sources, yts.NewClient(cfg, logger))
	}
	if cfg.EZTVEnabled {
		sources = append(sources, eztv.NewClient(cfg, logger))
	}
	if cfg.RARBGEnabled {
		sources = append(sources, rarbg.NewClient(cfg, logger))
	}
	if len(sources) == 0 {
		return fmt.Errorf("no torrent sources enabled")
	}
	search := aggregator.New(sources, cfg.SourceConcurrency, sourceTimeout, logger)
	logger.WithField("sources", len(sources)).Info("Sources initialized")

	sel := selector.New(cfg.QualityPriority, cfg.SimilarityThreshold)

	// 7. Initialize controllers
	reconcileCtrl := controllers.NewReconcileController(
		db, search, sel, gateway, imdbClient, plexClient, blacklist, cfg.SourceConcurrency, logger)
	trackerCtrl := controllers.NewTrackerController(db, gateway, plexClient, logger)
	logger.Info("Controllers initialized")

	// 8. Initialize scheduler
	sched := scheduler.NewScheduler(reconcileCtrl, trackerCtrl, cfg.ReconcileInterval, cfg.TrackerInterval, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 9. Initialize HTTP server
	server := api.NewServer(cfg, db, gateway, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 10. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Roundup is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Roundup stopped")
	return nil
}
