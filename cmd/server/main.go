// Package main is the entry point for the DITM call screener.
// The service scans option chains for deep-in-the-money calls, allocates
// capital across the best candidates, tracks open recommendations and
// reports portfolio performance over an HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/clients/schwab"
	"github.com/aristath/ditm/internal/config"
	"github.com/aristath/ditm/internal/database"
	"github.com/aristath/ditm/internal/modules/allocation"
	"github.com/aristath/ditm/internal/modules/analytics"
	"github.com/aristath/ditm/internal/modules/metrics"
	"github.com/aristath/ditm/internal/modules/presets"
	"github.com/aristath/ditm/internal/modules/scan"
	"github.com/aristath/ditm/internal/modules/scoring"
	"github.com/aristath/ditm/internal/modules/tracking"
	"github.com/aristath/ditm/internal/modules/watchlist"
	"github.com/aristath/ditm/internal/reliability"
	"github.com/aristath/ditm/internal/scheduler"
	"github.com/aristath/ditm/internal/server"
	"github.com/aristath/ditm/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting DITM screener")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Fatal error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// Databases
	recsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "recommendations.db"),
		Profile: database.ProfileStandard,
		Name:    "recommendations",
	})
	if err != nil {
		return err
	}
	defer recsDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return err
	}
	defer cacheDB.Close()

	databases := []*database.DB{recsDB, cacheDB}
	for _, db := range databases {
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	// Market data gateway
	gateway := schwab.NewClient(
		cfg.SchwabBaseURL,
		cfg.SchwabToken,
		cfg.SchwabMaxRetries,
		time.Duration(cfg.SchwabDelayMillis)*time.Millisecond,
		log,
	)

	// Preset library
	library, err := presets.NewLibrary(cfg.PresetsPath, log)
	if err != nil {
		return err
	}

	// Repositories and services
	scanRepo := scan.NewRepository(recsDB.Conn(), log)
	scanCache := scan.NewCache(cacheDB.Conn(), log)
	trackingRepo := tracking.NewRepository(recsDB.Conn(), log)
	trackingSvc := tracking.NewService(trackingRepo, gateway, log)
	watchlistRepo := watchlist.NewRepository(recsDB.Conn(), log)
	if err := seedWatchlist(watchlistRepo, cfg.DefaultTickers, log); err != nil {
		return err
	}

	scanSvc := scan.NewService(
		gateway,
		metrics.NewCalculator(log),
		library,
		scoring.NewDefaultScorer(),
		allocation.NewAllocator(log),
		scanRepo,
		scanCache,
		trackingSvc,
		cfg.ScanWorkers,
		log,
	)

	// Risk metrics work in percent units; the configured rate is a fraction.
	analyticsSvc := analytics.NewService(
		trackingRepo,
		analytics.NewEngine(cfg.RiskFreeRate*100),
		log,
	)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewRefreshJob(trackingSvc, log)); err != nil {
		return err
	}
	if err := sched.AddJob("0 0 2 * * *", reliability.NewMaintenanceJob(databases, log)); err != nil {
		return err
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		r2Client, err := reliability.NewR2Client(
			cfg.Backup.AccountID,
			cfg.Backup.AccessKeyID,
			cfg.Backup.SecretAccessKey,
			cfg.Backup.Bucket,
			log,
		)
		if err != nil {
			return err
		}

		backupSvc := reliability.NewBackupService(
			databases,
			r2Client,
			cfg.DataDir,
			cfg.Backup.Prefix,
			cfg.Backup.Retention,
			log,
		)
		if err := sched.AddJob(cfg.Backup.Schedule, reliability.NewBackupJob(backupSvc, log)); err != nil {
			return err
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:          cfg.Port,
		DevMode:       cfg.DevMode,
		DataDir:       cfg.DataDir,
		TargetCapital: cfg.TargetCapital,
		DefaultPreset: library.Default().Name,
		Scans:         scanSvc,
		ScanRepo:      scanRepo,
		ScanCache:     scanCache,
		Tracking:      trackingSvc,
		Analytics:     analyticsSvc,
		Presets:       library,
		Watchlist:     watchlistRepo,
		Databases:     databases,
		Log:           log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedWatchlist fills an empty watchlist with the configured default tickers.
func seedWatchlist(repo *watchlist.Repository, tickers []string, log zerolog.Logger) error {
	if len(tickers) == 0 {
		return nil
	}

	existing, err := repo.List()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, ticker := range tickers {
		if _, err := repo.Add(ticker); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Skipping invalid default ticker")
		}
	}
	log.Info().Strs("tickers", tickers).Msg("Watchlist seeded from configuration")
	return nil
}
