package logger

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a zap-backed logger. format is "json" or "console".
func New(level, format string) (*Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &Logger{sugar: z.Sugar()}, nil
}

// Wrap adapts an existing zap logger, mostly for tests.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}

// Sugar returns the underlying zap logger without the caller skip used by
// the printf helpers.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar.WithOptions(zap.AddCallerSkip(-1))
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(Wrap(zap.NewNop()))
}

// SetGlobal replaces the logger used by the package level helpers.
func SetGlobal(l *Logger) {
	global.Store(l)
}

func L() *Logger {
	return global.Load()
}

// Convenience functions
func Info(format string, v ...interface{}) {
	L().Info(format, v...)
}

func Error(format string, v ...interface{}) {
	L().Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	L().Debug(format, v...)
}

func Warn(format string, v ...interface{}) {
	L().Warn(format, v...)
}

func Fatal(format string, v ...interface{}) {
	L().Fatal(format, v...)
}

type key string

const idKey key = "request_id"

func NewContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok
}

// FromContext returns the global sugared logger tagged with the request id
// carried by ctx, if any.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	s := L().Sugar()
	if id, ok := IDFromContext(ctx); ok {
		return s.With("request_id", id)
	}
	return s
}
