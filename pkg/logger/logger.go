package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var (
	mu      sync.RWMutex
	logger  Logger
	sLogger *slog.Logger
)

type PrintfLogger interface {
	Printf(string, ...any)
}

type Logger interface {
	PrintfLogger
	Debug(msg string, fields ...interface{})
	Debugf(msg string, args ...interface{})
	Info(msg string, fields ...interface{})
	Infof(msg string, args ...interface{})
	Warn(msg string, fields ...interface{})
	Warnf(msg string, args ...interface{})
	Error(msg string, fields ...interface{})
	Errorf(msg string, args ...interface{})
	Fatal(msg string, fields ...interface{})
	Fatalf(msg string, args ...interface{})
}

type ZapLogger struct {
	Logger       *zap.Logger
	loggerConfig zap.Config
}

type optionFunc func(*ZapLogger)

// InitLogger builds the process-wide zap logger and the slog bridge that
// carries context attributes (cycle id, account) into every record.
func InitLogger(opts ...optionFunc) error {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		return nil
	}
	zapLogger, err := newZapLogger(opts...)
	if err != nil {
		return err
	}
	logger = zapLogger
	sLogger = newSLogger(zapLogger.Logger, zapLogger.loggerConfig.Level.Level())
	return nil
}

func newZapLogger(opts ...optionFunc) (*ZapLogger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerZap := &ZapLogger{loggerConfig: loggerConfig}
	for _, opt := range opts {
		opt(loggerZap)
	}
	var err error
	loggerZap.Logger, err = loggerZap.loggerConfig.Build()
	if err != nil {
		return nil, err
	}
	return loggerZap, nil
}

// NewZapLogger returns a standalone zap logger. The global logger is not
// touched; the HTTP access log uses this.
func NewZapLogger(opts ...optionFunc) (*ZapLogger, error) {
	return newZapLogger(opts...)
}

type LevelAdapter struct {
	ZapLevel zapcore.Level
}

func (l LevelAdapter) Level() slog.Level {
	switch l.ZapLevel {
	case zapcore.DebugLevel:
		return slog.LevelDebug
	case zapcore.InfoLevel:
		return slog.LevelInfo
	case zapcore.WarnLevel:
		return slog.LevelWarn
	case zapcore.ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newSLogger(zapLogger *zap.Logger, level zapcore.Level) *slog.Logger {
	return slog.New(slogzap.Option{
		Logger:          zapLogger,
		Level:           LevelAdapter{ZapLevel: level},
		AttrFromContext: []func(ctx context.Context) []slog.Attr{attrsFromContext},
	}.NewZapHandler())
}

type attrsKey struct{}

// WithAttrs returns a context whose log records carry the given key/value
// pairs in addition to any attributes already attached.
func WithAttrs(ctx context.Context, kv ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	attrs := make([]slog.Attr, 0, len(prev)+len(kv)/2)
	attrs = append(attrs, prev...)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return context.WithValue(ctx, attrsKey{}, attrs)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}

// AttrsFromContext exposes the attributes attached with WithAttrs.
func AttrsFromContext(ctx context.Context) []slog.Attr {
	return attrsFromContext(ctx)
}

func getSLogger() *slog.Logger {
	mu.RLock()
	s := sLogger
	mu.RUnlock()
	if s != nil {
		return s
	}
	_ = InitLogger()
	mu.RLock()
	defer mu.RUnlock()
	return sLogger
}

func DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().DebugContext(ctx, msg, fields...)
}

func InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().InfoContext(ctx, msg, fields...)
}

func WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().WarnContext(ctx, msg, fields...)
}

func ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	getSLogger().ErrorContext(ctx, msg, fields...)
}

// NewZapLoggerForTest swaps the global logger for a zaptest logger bound to t.
func NewZapLoggerForTest(t *testing.T) Logger {
	zl := &ZapLogger{Logger: zaptest.NewLogger(t)}
	swapForTest(t, zl)
	return zl
}

// NewObservedLoggerForTest swaps the global logger for one that records
// every entry in memory.
func NewObservedLoggerForTest(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	swapForTest(t, &ZapLogger{Logger: zap.New(core)})
	return logs
}

func swapForTest(t *testing.T, zl *ZapLogger) {
	mu.Lock()
	prevLogger, prevSLogger := logger, sLogger
	logger = zl
	sLogger = newSLogger(zl.Logger, zapcore.DebugLevel)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		logger, sLogger = prevLogger, prevSLogger
		mu.Unlock()
	})
}

func WithLevel(level zapcore.Level) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.Level = zap.NewAtomicLevelAt(level)
	}
}

func WithEncodeTime(timeKey string, timeEncoder zapcore.TimeEncoder) optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.EncoderConfig.TimeKey = timeKey
		zl.loggerConfig.EncoderConfig.EncodeTime = timeEncoder
	}
}

// WithConsoleEncoding switches from JSON lines to the console encoder.
func WithConsoleEncoding() optionFunc {
	return func(zl *ZapLogger) {
		zl.loggerConfig.Encoding = "console"
		zl.loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
}

func GetLogger() Logger {
	return get()
}

func get() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = InitLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...interface{}) {
	get().Debug(msg, fields...)
}

func Debugf(msg string, fields ...interface{}) {
	get().Debugf(msg, fields...)
}

func Info(msg string, fields ...interface{}) {
	get().Info(msg, fields...)
}

func Infof(msg string, fields ...interface{}) {
	get().Infof(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	get().Warn(msg, fields...)
}

func Warnf(msg string, fields ...interface{}) {
	get().Warnf(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	get().Error(msg, fields...)
}

func Errorf(msg string, fields ...interface{}) {
	get().Errorf(msg, fields...)
}

func Fatal(msg string, fields ...interface{}) {
	get().Fatal(msg, fields...)
}

func Fatalf(msg string, fields ...interface{}) {
	get().Fatalf(msg, fields...)
}

// Sync flushes buffered entries; called on the way out.
func Sync() {
	if zl, ok := get().(*ZapLogger); ok && zl.Logger != nil {
		_ = zl.Logger.Sync()
	}
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.Logger.Sugar().Debugw(msg, fields...)
}

func (l *ZapLogger) Debugf(msg string, args ...interface{}) {
	l.Logger.Sugar().Debugf(msg, args...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.Logger.Sugar().Infow(msg, fields...)
}

func (l *ZapLogger) Infof(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.Logger.Sugar().Warnw(msg, fields...)
}

func (l *ZapLogger) Warnf(msg string, args ...interface{}) {
	l.Logger.Sugar().Warnf(msg, args...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorw(msg, fields...)
}

func (l *ZapLogger) Errorf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Errorf(msg, fields...)
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalw(msg, fields...)
}

func (l *ZapLogger) Fatalf(msg string, fields ...interface{}) {
	l.Logger.Sugar().Fatalf(msg, fields...)
}

func (l *ZapLogger) Printf(msg string, args ...interface{}) {
	l.Logger.Sugar().Infof(msg, args...)
}

// NewLogger builds the global logger from the config's logger settings.
func NewLogger(loggerLevel string, console bool) (Logger, error) {
	zapLevel, err := zapcore.ParseLevel(loggerLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse logger level: %v", err)
	}
	opts := []optionFunc{WithLevel(zapLevel), WithEncodeTime("timestamp", zapcore.ISO8601TimeEncoder)}
	if console {
		opts = append(opts, WithConsoleEncoding())
	}
	if err := InitLogger(opts...); err != nil {
		return nil, err
	}
	return get(), nil
}
