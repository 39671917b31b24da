// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oddsgate/platform/access"
	"oddsgate/platform/audit"
	"oddsgate/platform/catalog"
	"oddsgate/platform/connectors/mongodb"
	"oddsgate/platform/forwarder"
	"oddsgate/platform/hotcache"
	"oddsgate/platform/shared/logger"
	"oddsgate/platform/supervisor"
)

const cacheSweepInterval = time.Minute

// Run is the exported entry point of the gateway binary. With WORKERS > 1
// the process supervises that many workers; otherwise it serves directly.
func Run() {
	log := logger.New("gateway")

	cfg, err := LoadConfig()
	if err != nil {
		log.Error("", "", "invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Workers > 1 && !supervisor.IsWorker() {
		sup := supervisor.New(supervisor.Config{
			Workers: cfg.Workers,
			Logger:  log.With("supervisor"),
		})
		if err := sup.Run(ctx); err != nil {
			log.Error("", "", "supervisor failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("", "", "gateway stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// serve runs one gateway instance until ctx is cancelled, then shuts it
// down in dependency order.
func serve(ctx context.Context, cfg Config, log *logger.Logger) error {
	mongoClient, err := mongodb.Connect(ctx, mongodb.Options{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		AppName:  serviceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()
	db := mongoClient.Database()
	log.Info("", "", "MongoDB connected", map[string]interface{}{"database": cfg.MongoDatabase})

	accessStore := access.NewMongoStore(db)
	catalogStore := catalog.NewMongoStore(db)
	sink := audit.NewMongoSink(db)
	hub := audit.NewHub(log.With("admin-hub"))
	defer hub.Close()

	var publisher audit.Publisher = hub
	if cfg.RedisURL != "" {
		redisClient, err := audit.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Warn("", "", "Redis unavailable, log observers see this worker only", map[string]interface{}{"error": err.Error()})
		} else {
			defer redisClient.Close()
			relay := audit.NewRedisRelay(redisClient, hub, log.With("log-relay"))
			if err := relay.Start(ctx); err != nil {
				log.Warn("", "", "log relay subscribe failed", map[string]interface{}{"error": err.Error()})
			} else {
				defer relay.Close()
				publisher = relay
			}
		}
	}

	queue, err := audit.NewQueue(audit.QueueConfig{
		Size:         cfg.AuditQueueSize,
		Workers:      cfg.AuditWorkers,
		FallbackPath: cfg.AuditFallbackPath,
	}, sink, publisher, log.With("audit-queue"))
	if err != nil {
		return err
	}

	httpClient := forwarder.NewClient()
	feed := catalog.NewClient(catalog.ClientConfig{
		HTTP:        httpClient,
		Endpoints:   cfg.Providers.Catalog,
		Credentials: cfg.Providers.SportRadar,
		Royal:       cfg.Providers.Royal.Sync,
		Timeout:     cfg.UpstreamTimeout,
	})

	srv := NewServer(Deps{
		Config:  cfg,
		Access:  accessStore,
		Catalog: catalogStore,
		Feed:    feed,
		Auditor: queue,
		Hub:     hub,
		Client:  httpClient,
		Logger:  log,
	})

	ln, err := supervisor.Listen(ctx, ":"+cfg.Port)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("", "", "OddsGate gateway listening", map[string]interface{}{"port": cfg.Port, "status": "starting"})
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := sink.EnsureIndexes(ictx); err != nil {
		log.Warn("", "", "audit index setup failed", map[string]interface{}{"error": err.Error()})
	}
	if err := catalogStore.EnsureIndexes(ictx); err != nil {
		log.Warn("", "", "catalog index setup failed", map[string]interface{}{"error": err.Error()})
	}
	cancel()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var scheduler *catalog.Scheduler
	if cfg.SyncEnabled {
		sportDelay, pairDelay, srlDelay := catalog.DefaultDelays()
		scheduler = catalog.NewScheduler(catalog.SchedulerConfig{
			Feed:       feed,
			Store:      catalogStore,
			Counters:   accessStore,
			Interval:   cfg.SyncInterval,
			SportDelay: sportDelay,
			PairDelay:  pairDelay,
			SRLDelay:   srlDelay,
			Royal:      cfg.RoyalSyncEnabled,
			Logger:     log.With("catalog-sync"),
			OnResult:   observeSync,
		})
		scheduler.Start(bgCtx)
	} else {
		log.Info("", "", "catalog sync disabled", nil)
	}
	go hotcache.RunSweeper(bgCtx, cacheSweepInterval, srv.Caches()...)

	srv.SetReady()
	log.Info("", "", "all initialization complete, gateway ready", map[string]interface{}{"port": cfg.Port})

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("", "", "shutdown signal received", nil)
	case err, ok := <-serveErr:
		if ok {
			runErr = err
		}
	}

	stopBackground()
	if scheduler != nil {
		scheduler.Wait()
	}

	sctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(sctx); err != nil {
		log.Warn("", "", "http shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	srv.Close()
	if err := queue.Shutdown(sctx); err != nil {
		log.Warn("", "", "audit queue drain incomplete", map[string]interface{}{"error": err.Error()})
	}
	log.Info("", "", "gateway stopped", nil)
	return runErr
}
