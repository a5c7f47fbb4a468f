package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpetrov/harmonia/internal/catalog"
	"github.com/mpetrov/harmonia/internal/config"
	"github.com/mpetrov/harmonia/internal/constants"
	"github.com/mpetrov/harmonia/internal/extractor"
	"github.com/mpetrov/harmonia/internal/filesystem"
	"github.com/mpetrov/harmonia/internal/handlers"
	"github.com/mpetrov/harmonia/internal/logger"
	"github.com/mpetrov/harmonia/internal/lyrics"
	"github.com/mpetrov/harmonia/internal/scheduler"
	"github.com/mpetrov/harmonia/internal/secrets"
	"github.com/mpetrov/harmonia/internal/store"
	"github.com/mpetrov/harmonia/internal/tasks"
	"github.com/mpetrov/harmonia/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	for _, dir := range []string{cfg.MusicDir, cfg.DownloadDir(), cfg.CoversDir(), cfg.LyricsDir(), cfg.CacheDir()} {
		if err := filesystem.EnsureDir(dir); err != nil {
			appLogger.Error("Failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		appLogger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.SeedDefaults(ctx); err != nil {
		appLogger.Error("Failed to seed settings", "error", err)
		os.Exit(1)
	}

	if _, err := secrets.Load(cfg.SecretsPath()); err != nil {
		appLogger.Error("Failed to load secrets", "error", err)
		os.Exit(1)
	}

	// A restart never resumes reserved jobs; return anything a dead worker
	// left behind.
	if n, err := db.RequeueStale(ctx, 0, time.Now()); err != nil {
		appLogger.Warn("Failed to requeue stale jobs", "error", err)
	} else if n > 0 {
		appLogger.Info("Requeued jobs left reserved by a previous run", "count", n)
	}

	cat := catalog.NewCachedClient(
		catalog.NewHTTPClient(cfg.ProviderURL),
		constants.DefaultCacheSize, constants.DefaultCacheTTL)

	audioQuality := db.StringSetting(ctx, store.SettingAudioQuality, "mp3")
	ext := extractor.NewYtdlpExtractor(cfg.YtdlpPath, cfg.CookiesFile, audioQuality, appLogger)
	lyr := lyrics.NewLRCLIBClient(cfg.LyricsURL)

	taskSet := tasks.New(db, cat, ext, lyr, cfg, appLogger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(db, taskSet.Handlers(), cfg.WorkerCount, worker.Options{
		PollInterval: cfg.PollInterval,
		IdleSleep:    cfg.IdleSleep,
		MaxJobs:      cfg.MaxJobs,
	}, appLogger)
	pool.Start(runCtx)

	sched := scheduler.New(db, appLogger)
	go sched.Run(runCtx)

	h := handlers.NewHandler(db, cat, appLogger)
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
		Handler: h.Router(),
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-runCtx.Done()
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shut down", "error", err)
	}

	// Workers finish their in-flight job before exiting.
	pool.Wait()
	appLogger.Info("Server exiting")
}
