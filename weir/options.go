package weir

import "log/slog"

// readerConfig holds the resolved configuration for a StreamReader.
type readerConfig struct {
	log *slog.Logger
}

// ReaderOption configures StreamReader construction.
type ReaderOption func(*readerConfig)

// WithLogger attaches a logger for debug events (validation resolution,
// reads). The default logger discards everything.
func WithLogger(log *slog.Logger) ReaderOption {
	return func(cfg *readerConfig) {
		if log != nil {
			cfg.log = log
		}
	}
}
