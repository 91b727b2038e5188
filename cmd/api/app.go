package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/abduss/filemeta/internal/auth"
	"github.com/abduss/filemeta/internal/clock"
	"github.com/abduss/filemeta/internal/config"
	"github.com/abduss/filemeta/internal/conflict"
	"github.com/abduss/filemeta/internal/metadata"
	"github.com/abduss/filemeta/internal/metrics"
	"github.com/abduss/filemeta/internal/notify"
	"github.com/abduss/filemeta/internal/server"
	"github.com/abduss/filemeta/internal/storage"
	"github.com/abduss/filemeta/internal/storage/memory"
	"github.com/abduss/filemeta/internal/version"
	"go.uber.org/zap"
)

type stores struct {
	tx        metadata.Transactor
	metadata  metadata.Store
	versions  version.Store
	conflicts conflict.Store
}

func serve(parent context.Context, cfg config.Config, logg *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collectors := metrics.InitMetrics()
	var checks []server.HealthCheck

	var st stores
	switch cfg.Store {
	case "memory":
		db := memory.New()
		st = stores{tx: db, metadata: db.Metadata(), versions: db.Versions(), conflicts: db.Conflicts()}
		logg.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logg.Error("connect postgres", zap.Error(err))
			return err
		}
		defer pool.Close()
		checks = append(checks, server.PostgresCheck(pool))
		st = stores{
			tx:        storage.NewTxManager(pool),
			metadata:  metadata.NewRepository(pool),
			versions:  version.NewRepository(pool),
			conflicts: conflict.NewRepository(pool),
		}
	}

	var cache metadata.Cache = metadata.NopCache{}
	if cfg.Redis.Enabled {
		client, err := storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logg.Error("connect redis", zap.Error(err))
			return err
		}
		defer client.Close()
		checks = append(checks, server.RedisCheck(client))

		redisCache := metadata.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		redisCache.ObserveLookups(collectors.ObserveCacheLookup)
		cache = redisCache
	}

	sinks := []notify.Sink{collectors.Sink()}
	if cfg.Notify.MonitoringURL != "" {
		sinks = append(sinks, notify.NewWebhookSink("monitoring", cfg.Notify.MonitoringURL, cfg.Notify.MonitoringAPIKey, notify.MonitoringRoutes(), cfg.Notify.Timeout))
	}
	if cfg.Notify.SyncURL != "" {
		sinks = append(sinks, notify.NewWebhookSink("sync", cfg.Notify.SyncURL, cfg.Notify.SyncAPIKey, notify.SyncRoutes(), cfg.Notify.Timeout))
	}
	if cfg.Notify.NATSURL != "" {
		conn, err := notify.DialNATS(cfg.Notify.NATSURL, cfg.Notify.Timeout)
		if err != nil {
			logg.Error("connect nats", zap.Error(err))
			return err
		}
		defer conn.Close()
		sinks = append(sinks, notify.NewNATSSink(conn, cfg.Notify.NATSSubject))
	}
	if cfg.MinIO.Enabled {
		client, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			logg.Error("connect minio", zap.Error(err))
			return err
		}
		if err := storage.EnsureAuditBucket(ctx, client, cfg.MinIO); err != nil {
			logg.Error("ensure audit bucket", zap.Error(err))
			return err
		}
		checks = append(checks, server.MinIOCheck(client, cfg.MinIO.Bucket))
		sinks = append(sinks, notify.NewArchiveSink(client, cfg.MinIO.Bucket))
	}

	dispatcher := notify.NewDispatcher(logg.Named("notify"), cfg.Notify.Timeout, sinks...)
	dispatcher.OnFailure(collectors.NotificationFailed)
	dispatcher.Start(cfg.Notify.QueueSize)
	logg.Info("notification sinks configured", zap.Strings("sinks", dispatcher.Sinks()))

	clk := clock.Real{}
	ids := clock.UUIDGenerator{}

	versionService := version.NewService(st.versions, clk, ids, logg.Named("version"))
	metadataService := metadata.NewService(st.metadata, versionService, st.tx, cache, dispatcher, clk, ids, logg.Named("metadata"))
	versionService.TrackFiles(metadataService)
	conflictService := conflict.NewService(st.conflicts, versionService, metadataService, st.tx, dispatcher, clk, ids, logg.Named("conflict"))

	authService := auth.NewService(cfg.Auth)
	if !authService.Enabled() {
		logg.Warn("FILEMETA_TOKEN_SECRET is empty; API authentication disabled")
	}

	router := server.NewRouter(server.Dependencies{
		Config:          cfg,
		Logger:          logg.Named("http"),
		Metrics:         collectors,
		HealthChecks:    checks,
		AuthService:     authService,
		MetadataService: metadataService,
		VersionService:  versionService,
		ConflictService: conflictService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info("filemeta API listening", zap.String("address", cfg.Server.Address()), zap.String("store", cfg.Store))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error("http server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
		return err
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logg.Warn("pending notifications not delivered", zap.Error(err))
	}
	return nil
}
