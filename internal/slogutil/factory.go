package slogutil

import (
	"io"
	"log/slog"

	"callrec/internal/config"
)

// LoggerFactory builds the CLI logger from the logging config. A level set
// on the command line wins over the configured one.
type LoggerFactory struct {
	cfg      config.LoggingConfig
	cliLevel *slog.Level
	closers  []io.Closer
}

// NewLoggerFactory creates a factory. cliLevel is nil when no -v/-q flag
// was given.
func NewLoggerFactory(cfg config.LoggingConfig, cliLevel *slog.Level) *LoggerFactory {
	return &LoggerFactory{cfg: cfg, cliLevel: cliLevel}
}

// Level returns the effective level.
func (f *LoggerFactory) Level() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.cfg.Level != "" {
		return LevelFromString(f.cfg.Level)
	}
	return slog.LevelWarn
}

// Logger returns a logger writing to console and, when logging.file is set,
// also to that file (rotated per logging.maxSize). The file always records
// at least info so it keeps context the console hides.
func (f *LoggerFactory) Logger(console io.Writer) (*slog.Logger, error) {
	level := f.Level()
	consoleHandler := NewLineHandler(console, &slog.HandlerOptions{Level: level})
	if f.cfg.File == "" {
		return slog.New(consoleHandler), nil
	}

	fileLevel := min(level, slog.LevelInfo)
	fileLogger, closer, err := NewFileLoggerWithRotation(f.cfg.File, fileLevel, f.cfg.MaxSize, f.cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, closer)
	return slog.New(NewTeeHandler(consoleHandler, fileLogger.Handler())), nil
}

// Close closes any log files opened by Logger.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
