package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger = zap.SugaredLogger

func New() *Logger {
	l, _ := zap.NewProduction()
	return l.Sugar()
}

// NewCLI builds a console logger for interactive use. Output goes to
// stderr so result streams on stdout stay clean. Silent raises the
// threshold to error regardless of level.
func NewCLI(level string, silent bool) *Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}
	if silent {
		lvl = zapcore.ErrorLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return New()
	}
	return l.Sugar()
}

// Nop discards everything. Handy default for library consumers that do
// not pass a logger.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}
