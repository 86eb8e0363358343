// Package observability holds the process-wide zap loggers.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CLILogger is used by commands. Output goes to stderr so stdout stays
	// free for records.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server.
	ServerLogger = zap.NewNop()
)

// InitCLILogger replaces CLILogger. Unknown levels fall back to info.
func InitCLILogger(level string, json bool) {
	CLILogger = newLogger(level, json).Named("cli")
}

// InitServerLogger replaces ServerLogger. Server logs are always JSON.
func InitServerLogger(level string) {
	ServerLogger = newLogger(level, true).Named("server")
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func newLogger(level string, json bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

// Sync flushes both loggers.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
