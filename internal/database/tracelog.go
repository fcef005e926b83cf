package database

import (
	"context"

	"groupchat/pkg/logger"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLogger writes pgx query traces to zap, tagged with the request id
// carried by the query context.
type TraceLogger struct {
	logger *zap.Logger
}

func NewTraceLogger(l *zap.Logger) *TraceLogger {
	return &TraceLogger{logger: l.WithOptions(zap.AddCallerSkip(1))}
}

func (tl *TraceLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zapcore.Field, 0, len(data)+1)
	if id, ok := logger.IDFromContext(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case tracelog.LogLevelTrace:
		tl.logger.Debug(msg, append(fields, zap.Stringer("PGX_LOG_LEVEL", level))...)
	case tracelog.LogLevelDebug:
		tl.logger.Debug(msg, fields...)
	case tracelog.LogLevelInfo:
		tl.logger.Info(msg, fields...)
	case tracelog.LogLevelWarn:
		tl.logger.Warn(msg, fields...)
	case tracelog.LogLevelError:
		tl.logger.Error(msg, fields...)
	default:
		tl.logger.Error(msg, append(fields, zap.Stringer("PGX_LOG_LEVEL", level))...)
	}
}
