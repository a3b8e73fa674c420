package extensions

import (
	"log/slog"
	"time"

	pumped "github.com/pumped-fn/pumped-go-sub001"
)

// LoggingExtension emits a structured start/finish log entry for every
// operation kind the chain sees: resolves, flow executions, subflows,
// journaled steps, and parallel fan-outs.
type LoggingExtension struct {
	pumped.BaseExtension

	logger *slog.Logger
}

// NewLoggingExtension creates a logging extension writing through
// logHandler (e.g. slog.NewTextHandler(os.Stdout, nil)).
func NewLoggingExtension(logHandler slog.Handler) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: pumped.BaseExtension{ExtName: "logging"},
		logger:        slog.New(logHandler),
	}
}

func (e *LoggingExtension) Wrap(op pumped.Operation, next func() (any, error)) (any, error) {
	start := time.Now()
	e.logger.Debug("operation starting", "extension", e.Name(), "kind", op.Kind.String())

	result, err := next()
	duration := time.Since(start)

	if err != nil {
		e.logger.Warn("operation failed",
			"extension", e.Name(),
			"kind", op.Kind.String(),
			"duration", duration,
			"error", err.Error(),
		)
	} else {
		e.logger.Info("operation completed",
			"extension", e.Name(),
			"kind", op.Kind.String(),
			"duration", duration,
		)
	}

	return result, err
}
