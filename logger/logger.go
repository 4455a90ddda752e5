package logger

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// New builds the service logger for env and writes it to stdout. Production
// logs are JSON, development logs are coloured console lines. When sink is
// non-nil every entry is also written to it as JSON, which is how logs reach
// CloudWatch.
func New(env string, sink io.Writer) (*zap.Logger, error) {
	return build(env, zapcore.Lock(os.Stdout), sink), nil
}

func build(env string, out zapcore.WriteSyncer, sink io.Writer) *zap.Logger {
	production := env == "production"

	var config zap.Config
	if production {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
	}
	level := config.Level

	var stdoutEncoder zapcore.Encoder
	if production {
		stdoutEncoder = zapcore.NewJSONEncoder(config.EncoderConfig)
	} else {
		consoleCfg := config.EncoderConfig
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stdoutEncoder = zapcore.NewConsoleEncoder(consoleCfg)
	}
	core := zapcore.NewCore(stdoutEncoder, out, level)

	if sink != nil {
		// Sink entries are always JSON with plain lowercase levels.
		jsonCfg := config.EncoderConfig
		jsonCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(sink), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if production {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	return zap.New(core, opts...)
}

// WithRequestID returns a copy of ctx carrying requestID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID extracts the request ID from ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// With returns base annotated with the request ID found in ctx.
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return base.With(zap.String(RequestIDKey, id))
	}
	return base
}
