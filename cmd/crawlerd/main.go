// Package main wires together the crack-archive crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/api"
	"github.com/crackdb/crawler/internal/browser/headless"
	"github.com/crackdb/crawler/internal/clock/system"
	"github.com/crackdb/crawler/internal/config"
	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/crawler/datoid"
	"github.com/crackdb/crawler/internal/dispatcher"
	"github.com/crackdb/crawler/internal/download"
	"github.com/crackdb/crawler/internal/hash/sha256"
	"github.com/crackdb/crawler/internal/hashstore"
	"github.com/crackdb/crawler/internal/id/uuid"
	"github.com/crackdb/crawler/internal/logging"
	"github.com/crackdb/crawler/internal/progress"
	"github.com/crackdb/crawler/internal/progress/sinks"
	memorypublisher "github.com/crackdb/crawler/internal/publisher/memory"
	pubsubpublisher "github.com/crackdb/crawler/internal/publisher/pubsub"
	queuememory "github.com/crackdb/crawler/internal/queue/memory"
	"github.com/crackdb/crawler/internal/store"
	"github.com/crackdb/crawler/internal/store/postgres"
	"github.com/crackdb/crawler/internal/tasks"
	"github.com/crackdb/crawler/internal/vtscan"
	"github.com/crackdb/crawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, stop); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stop func()) error {
	if err := os.MkdirAll(cfg.Download.Dir, 0o750); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	db, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer db.Close()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New(logger.Named("hash"))
	taskRegistry := tasks.NewRegistry(clock)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		sinks.NewTaskSink(taskRegistry),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Close(closeCtx)
	}()

	var events crawler.Publisher
	if cfg.PubSub.ProjectID != "" {
		ps, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		defer func() {
			if err := ps.Close(); err != nil {
				logger.Warn("closing pubsub publisher failed", zap.Error(err))
			}
		}()
		events = ps
	} else {
		logger.Info("pubsub project not configured, using in-memory publisher")
		events = memorypublisher.New()
	}

	archiver := download.New(download.Config{
		Dir:       cfg.Download.Dir,
		ChunkSize: cfg.Download.ChunkBytes,
		Timeout:   cfg.Download.Timeout(),
	}, logger.Named("download"))
	hashes := hashstore.New(filepath.Join(cfg.Download.Dir, cfg.Download.HashFile), logger.Named("hashstore"))
	recorder := store.NewRecorder(db, logger.Named("recorder"))

	sites := crawler.NewRegistry()
	sites.Register(datoid.Pattern, datoid.NewFactory(datoid.Config{
		ItemWait:      cfg.Crawler.ItemWait(),
		ControlWait:   cfg.Crawler.ControlWait(),
		FinalLinkWait: cfg.Crawler.FinalLinkWait(),
		PageSize:      cfg.Crawler.PageSize,
	}, datoid.Deps{
		Gate:      crawler.NewSizeGate(cfg.Download.MaxFileSizeMB, logger.Named("sizegate")),
		Extractor: crawler.NewItemExtractor(logger.Named("extract")),
		Archiver:  archiver,
		Hasher:    hasher,
		Hashes:    hashes,
		Recorder:  recorder,
		Progress:  hub,
		Logger:    logger.Named("datoid"),
	}))

	browsers := headless.NewFactory(headless.Config{
		Headless:  cfg.Crawler.Headless,
		UserAgent: cfg.Crawler.UserAgent,
	}, logger.Named("browser"))

	scanClient := vtscan.NewClient(vtscan.ClientConfig{
		APIKey:  cfg.VirusTotal.APIKey,
		BaseURL: cfg.VirusTotal.BaseURL,
	})
	poller := vtscan.NewPoller(scanClient, db, vtscan.PollerConfig{
		Interval: cfg.VirusTotal.CheckInterval(),
		Budget:   cfg.VirusTotal.MaxWait(),
	}, hub, logger.Named("vtscan"))

	queue := queuememory.New(cfg.Crawler.QueueDepth)

	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(i, worker.Deps{
			Queue:    queue,
			Sites:    sites,
			Browsers: browsers,
			Crawls:   db,
			Tasks:    taskRegistry,
			Analyses: poller,
			Hasher:   hasher,
			Progress: hub,
			Events:   events,
			Topic:    cfg.PubSub.TopicName,
			Clock:    clock,
			Logger:   logger.Named("worker"),
		}))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(dispatch, taskRegistry, idGen, clock, api.Options{
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		KnownSites: sites.Patterns(),
		Logger:     logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
	return nil
}
