package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/hanpama/dalgraph/internal/config"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/gateway"
	"github.com/hanpama/dalgraph/internal/grpcrt"
	"github.com/hanpama/dalgraph/internal/grpctp"
	"github.com/hanpama/dalgraph/internal/logging"
	"github.com/hanpama/dalgraph/internal/metrics"
	"github.com/hanpama/dalgraph/internal/otel"
	"github.com/hanpama/dalgraph/internal/protoreg"
	"github.com/hanpama/dalgraph/internal/server"
	"github.com/hanpama/dalgraph/internal/store/memory"
	"github.com/hanpama/dalgraph/internal/store/sqlite"
)

// store is an opened query executor.
type store struct {
	exec dal.Executor
	// migrate brings storage in line with the current metadata, or is nil.
	migrate func(context.Context) error
	close   func() error
}

func openStore(ctx context.Context, cfg *config.Config, current *entity.Current) (*store, error) {
	switch cfg.Store.Kind {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.Store.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		s := sqlite.New(db, current)
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &store{exec: s, migrate: s.Migrate, close: sqlDB.Close}, nil
	case config.StoreRemote:
		services, err := protoreg.Build(current)
		if err != nil {
			return nil, fmt.Errorf("protoreg build: %w", err)
		}
		transport := grpctp.New(
			grpctp.WithEndpoints(cfg.Store.Endpoints...),
			grpctp.WithRPCTimeout(cfg.Store.RPCTimeout.Std()))
		return &store{exec: grpcrt.NewClient(services, current, transport), close: transport.Close}, nil
	default:
		return &store{exec: memory.New(current), close: func() error { return nil }}, nil
	}
}

// setup installs the event bus with its logging, tracing and metrics
// subscribers. The returned function flushes and removes them.
func setup(cfg *config.Config) (*zap.Logger, *metrics.Metrics, func(), error) {
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	eventbus.Use(eventbus.New())
	unsubscribe := logging.Subscribe(logger)
	shutdown, err := otel.Setup(cfg.OTel.Endpoint, cfg.OTel.Service)
	if err != nil {
		unsubscribe()
		return nil, nil, nil, fmt.Errorf("otel setup: %w", err)
	}
	m := metrics.New()
	m.Subscribe()
	return logger, m, func() {
		m.Unsubscribe()
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
		unsubscribe()
		_ = logger.Sync()
	}, nil
}

func serverOptions(cfg *config.Config, m *metrics.Metrics) []server.Option {
	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout.Std()),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithPlayground(cfg.Server.Playground),
		server.WithIntrospection(cfg.Server.Introspection),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORS...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	if cfg.Server.Metrics {
		opts = append(opts, server.WithMetrics(m.Handler()))
	}
	return opts
}

// newGateway loads the metadata and opens the store serving it.
func newGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gateway.Gateway, func() error, error) {
	reg, err := entity.LoadFile(cfg.Entities)
	if err != nil {
		return nil, nil, err
	}
	current := entity.NewCurrent(reg)
	st, err := openStore(ctx, cfg, current)
	if err != nil {
		return nil, nil, err
	}
	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithIntrospection(cfg.Server.Introspection),
		gateway.WithActions(cfg.Server.Actions),
	}
	if st.migrate != nil {
		opts = append(opts, gateway.OnReload(st.migrate))
	}
	g, err := gateway.New(current, dal.Instrument(st.exec), opts...)
	if err != nil {
		_ = st.close()
		return nil, nil, err
	}
	return g, st.close, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, m, teardown, err := setup(cfg)
	if err != nil {
		return err
	}
	defer teardown()

	g, closeStore, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	if cfg.Watch {
		go func() {
			if err := g.Watch(ctx, cfg.Entities); err != nil {
				logger.Error("watch entities", zap.String("path", cfg.Entities), zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewWithSource(g, serverOptions(cfg, m)...).Mux(cfg.Server.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("graphql server listening",
			zap.String("addr", srv.Addr),
			zap.String("path", cfg.Server.Path),
			zap.String("store", cfg.Store.Kind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveExecutor(ctx context.Context, cfg *config.Config) error {
	logger, _, teardown, err := setup(cfg)
	if err != nil {
		return err
	}
	defer teardown()

	reg, err := entity.LoadFile(cfg.Entities)
	if err != nil {
		return err
	}
	current := entity.NewCurrent(reg)
	st, err := openStore(ctx, cfg, current)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()
	services, err := protoreg.Build(current)
	if err != nil {
		return fmt.Errorf("protoreg build: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.Executor.Addr)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	grpcrt.NewServer(services, current, dal.Instrument(st.exec), grpcrt.WithServerLogger(logger)).Register(gs)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("executor listening", zap.String("addr", lis.Addr().String()), zap.String("store", cfg.Store.Kind))
		errCh <- gs.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
