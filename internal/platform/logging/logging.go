package logging

import (
	"fmt"
	"log/slog"

	"voicepipe-server-go/internal/utils"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

// Logger wraps the dual-output utils logger and exposes a slog view.
type Logger struct {
	core *utils.Logger
}

// New creates a Logger writing JSON records to Dir/Filename and colored
// text to stdout.
func New(cfg Config) (*Logger, error) {
	logCfg := &utils.LogCfg{
		LogLevel: cfg.Level,
		LogDir:   cfg.Dir,
		LogFile:  cfg.Filename,
	}
	core, err := utils.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &Logger{core: core}, nil
}

// Core exposes the underlying tagged logger.
func (l *Logger) Core() *utils.Logger {
	return l.core
}

// Slog exposes the structured logger for new integrations.
func (l *Logger) Slog() *slog.Logger {
	return l.core.Slog()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	return l.core.Close()
}
