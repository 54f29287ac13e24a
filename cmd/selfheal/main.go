package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-selfheal/internal/api"
	"github.com/miradorstack/mirador-selfheal/internal/config"
	"github.com/miradorstack/mirador-selfheal/internal/dataset"
	"github.com/miradorstack/mirador-selfheal/internal/engine"
	"github.com/miradorstack/mirador-selfheal/internal/metrics"
	"github.com/miradorstack/mirador-selfheal/internal/registry"
	"github.com/miradorstack/mirador-selfheal/internal/services"
	"github.com/miradorstack/mirador-selfheal/internal/store"
	"github.com/miradorstack/mirador-selfheal/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logWriter, logCloser := utils.LogWriter(cfg.Logging.File, utils.RotationConfig{
		MaxSizeMB:  cfg.Logging.Rotation.MaxSizeMB,
		MaxBackups: cfg.Logging.Rotation.MaxBackups,
		MaxAgeDays: cfg.Logging.Rotation.MaxAgeDays,
		Compress:   cfg.Logging.Rotation.Compress,
	})
	defer logCloser.Close()
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, logWriter)
	slog.SetDefault(logger)
	logger.Info("starting mirador-selfheal",
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
		slog.String("store", cfg.Store.Backend))

	if err := run(cfg, logger); err != nil {
		attrs := []any{slog.Any("error", err)}
		if appErr, ok := utils.AsAppError(err); ok {
			attrs = append(attrs, slog.String("op", appErr.Op))
		}
		logger.Error("mirador-selfheal exited", attrs...)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("mirador-selfheal stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return utils.NewAppError("main", "register metrics", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	artifacts, err := store.Open(ctx, store.Options{
		Backend: cfg.Store.Backend,
		Dir:     cfg.Store.Dir,
		Valkey: store.ValkeyConfig{
			Addr:         cfg.Store.Valkey.Addr,
			Username:     cfg.Store.Valkey.Username,
			Password:     cfg.Store.Valkey.Password,
			DB:           cfg.Store.Valkey.DB,
			DialTimeout:  cfg.Store.Valkey.DialTimeout,
			ReadTimeout:  cfg.Store.Valkey.ReadTimeout,
			WriteTimeout: cfg.Store.Valkey.WriteTimeout,
			MaxRetries:   cfg.Store.Valkey.MaxRetries,
			TLS:          cfg.Store.Valkey.TLS,
			KeyPrefix:    cfg.Store.Valkey.KeyPrefix,
		},
		SQL: store.SQLConfig{DSN: cfg.Store.SQL.DSN, Table: cfg.Store.SQL.Table},
		S3: store.S3Config{
			Bucket:   cfg.Store.S3.Bucket,
			Prefix:   cfg.Store.S3.Prefix,
			Region:   cfg.Store.S3.Region,
			Endpoint: cfg.Store.S3.Endpoint,
		},
	})
	if err != nil {
		return utils.NewAppError("main", "open artifact store", err)
	}
	defer artifacts.Close()

	manager := registry.NewManager(logger, dataset.NewCSVSource(cfg.Dataset.Path), artifacts, registry.Config{
		SeqLen:        cfg.Models.SeqLen,
		Contamination: cfg.Models.Contamination,
		Trees:         cfg.Models.Trees,
		Seed:          cfg.Models.Seed,
	})
	models, err := manager.Build(ctx)
	if err != nil {
		return err
	}
	logger.Info("model registry ready", slog.String("status", string(models.Status())), slog.Any("sources", models.Sources()))

	kb, err := engine.LoadKnowledgeBase(cfg.KnowledgeBase.Path, logger)
	if err != nil {
		return utils.NewAppError("main", "load knowledge base", err)
	}

	detector := engine.NewDetector(logger, models, kb, cfg.Models.ErrorThreshold)
	service := services.NewDetectionService(logger, detector)

	group, groupCtx := errgroup.WithContext(ctx)
	var shutdowns []func(context.Context)

	if cfg.Server.HTTPAddress != "" {
		httpServer, err := api.NewHTTPServer(cfg.Server, api.NewRouter(logger, service, cfg.Server.RateLimit))
		if err != nil {
			return utils.NewAppError("main", "create HTTP server", err)
		}
		group.Go(func() error {
			logger.Info("http server listening", slog.String("address", httpServer.Address()))
			return httpServer.Start()
		})
		shutdowns = append(shutdowns, func(ctx context.Context) {
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Warn("http server shutdown", slog.Any("error", err))
			}
		})
	}

	if cfg.Server.GRPCAddress != "" {
		grpcServer, err := api.NewServer(logger, cfg.Server, service, models.Ready())
		if err != nil {
			return utils.NewAppError("main", "create gRPC server", err)
		}
		group.Go(func() error {
			logger.Info("grpc server listening", slog.String("address", grpcServer.Address()))
			return grpcServer.Start()
		})
		shutdowns = append(shutdowns, grpcServer.Shutdown)
	}

	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		shutdowns = append(shutdowns, func(ctx context.Context) {
			if err := metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		for _, shutdown := range shutdowns {
			shutdown(shutdownCtx)
		}
		return nil
	})

	err = group.Wait()
	logger.Info("detection latency at shutdown", slog.Duration("p95", service.LatencyP95()))
	return err
}
