package explorer

import "github.com/oarkflow/explorer/logger"

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// WithLogger installs a Logger on the Workplace.
func WithLogger(l logger.Logger) Option {
	return func(w *Workplace) error {
		if l != nil {
			w.logger = l
		}
		return nil
	}
}
