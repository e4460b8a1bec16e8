package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"flowdash/internal/config"
	"flowdash/internal/httpapi"
	"flowdash/internal/hub"
	"flowdash/internal/store"
	"flowdash/internal/stream"
	"flowdash/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/flowdash.yaml"
	if p := os.Getenv("FLOWDASH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Error("opening sqlite store", "path", cfg.Storage.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	transport := &stream.WebsocketTransport{
		HandshakeTimeout: time.Duration(cfg.Stream.DialTimeoutMs) * time.Millisecond,
	}
	header := http.Header{}
	if cfg.Upstream.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.Upstream.AuthToken)
	}
	manager := stream.New(stream.Options{
		Catalog:        stream.NewCatalog(cfg.Upstream.BaseURL),
		Transport:      transport,
		Header:         header,
		ReconnectDelay: time.Duration(cfg.Stream.ReconnectDelayMs) * time.Millisecond,
		Retry: stream.RetryPolicy{
			AutoRetry:    cfg.Stream.Retry.AutoRetry,
			InitialDelay: time.Duration(cfg.Stream.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Stream.Retry.MaxDelayMs) * time.Millisecond,
			MaxAttempts:  cfg.Stream.Retry.MaxAttempts,
		},
		Logger: logger,
	})
	defer manager.Close()

	recorder := store.NewRecorder(sqlStore, sqlStore, logger)
	if err := recorder.Start(manager); err != nil {
		logger.Error("starting recorder", "error", err)
		os.Exit(1)
	}
	defer recorder.Stop()

	h := hub.New(manager, logger)
	manager.OnStatusChange(h.PushStatus)

	api := httpapi.NewServer(manager, sqlStore, h, logger)
	if err := api.Start(); err != nil {
		logger.Error("starting api server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Archive.Enabled {
		archiver := store.NewArchiver(sqlStore, store.NewParquetArchive(cfg.Storage.DataDir), logger)
		c := cron.New()
		_, err := c.AddFunc(cfg.Archive.Schedule, func() {
			runCtx, done := context.WithTimeout(context.Background(), 5*time.Minute)
			defer done()
			if err := archiver.RunOnce(runCtx, time.Now()); err != nil {
				logger.Error("archive run failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("bad archive schedule", "schedule", cfg.Archive.Schedule, "error", err)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		logger.Info("archive scheduled", "schedule", cfg.Archive.Schedule)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("flowdash-server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("flowdash-server stopped")
}
