package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global atomic.Pointer[zap.Logger]
	// initMu serializes lazy initialization in L.
	initMu sync.Mutex
)

// Init initializes zap logger depending on the environment.
func Init(env string) {
	global.Store(build(env))
}

func build(env string) *zap.Logger {
	var cfg zap.Config

	switch env {
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
	case "test":
		return zap.NewNop()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		panic(err)
	}
	return l
}

// L returns the global logger, initializing it from APP_ENV on first use.
// Safe for concurrent use.
func L() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}

	initMu.Lock()
	defer initMu.Unlock()
	if l := global.Load(); l != nil {
		return l
	}
	l := build(os.Getenv("APP_ENV"))
	global.Store(l)
	return l
}

// Replace swaps the global logger and returns a func restoring the previous one.
func Replace(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

// Sync flushes logs.
func Sync() {
	if l := global.Load(); l != nil {
		_ = l.Sync()
	}
}
