package preview2

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the preview2 package's logger. It is a no-op logger
// unless SetLogger was called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the preview2 package's logger.
// This must be called before any host is constructed.
func SetLogger(l *zap.Logger) {
	logger = l
}
