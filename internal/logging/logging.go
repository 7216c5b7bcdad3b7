// Package logging builds the process logger and logs the events published on
// the eventbus.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/reqid"
)

// New returns a production JSON logger writing at level and above. An empty
// level means info.
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zapcore.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Subscribe logs events from the global bus with l. The returned function
// removes the subscriptions.
func Subscribe(l *zap.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			l.Debug("http request",
				requestID(ctx),
				zap.String("method", e.Request.Method),
				zap.String("path", e.Request.URL.Path),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("operation", e.OperationName),
				zap.String("type", e.OperationType),
				zap.Duration("duration", e.Duration),
			}
			if len(e.Errors) > 0 {
				l.Info("graphql operation returned errors", append(fields, zap.Errors("errors", e.Errors))...)
				return
			}
			l.Debug("graphql operation", fields...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DALFinish) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("operation", e.Operation),
				zap.String("entity", e.Entity),
				zap.Int("rows", e.Rows),
				zap.Duration("duration", e.Duration),
			}
			if e.Err != nil {
				l.Warn("executor operation failed", append(fields, zap.Error(e.Err))...)
				return
			}
			l.Debug("executor operation", fields...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("method", e.Method),
				zap.String("target", e.Target),
				zap.Stringer("code", e.Code),
				zap.Duration("duration", e.Duration),
			}
			if e.Err != nil {
				l.Warn("grpc call failed", append(fields, zap.Error(e.Err))...)
				return
			}
			l.Debug("grpc call", fields...)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SchemaReload) {
			if e.Err != nil {
				l.Error("schema reload failed", zap.String("source", e.Source), zap.Error(e.Err))
				return
			}
			l.Info("schema reload",
				zap.String("source", e.Source),
				zap.Int("entities", e.Entities),
				zap.Duration("duration", e.Duration))
		}),
	}
	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

func requestID(ctx context.Context) zap.Field {
	if id, ok := reqid.FromContext(ctx); ok {
		return zap.Int64("request_id", id)
	}
	return zap.Skip()
}
