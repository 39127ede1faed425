// Package logging builds the zap loggers used across the ingestion core.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a zap logger for the given level ("debug"|"info"|"warn"|"error")
// and output paths (defaults to stdout when empty).
func New(level string, outputPaths []string) (*zap.Logger, error) {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// WithRequestID tags a logger with the inbound request id.
func WithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// WithComponent tags a logger with the owning component name.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}

// WithPlotID tags a logger with the plot the work item belongs to.
func WithPlotID(logger *zap.Logger, plotID string) *zap.Logger {
	return logger.With(zap.String("plot_id", plotID))
}

// WithSubscriptionID tags a logger with a satellite subscription id.
func WithSubscriptionID(logger *zap.Logger, subscriptionID string) *zap.Logger {
	return logger.With(zap.String("subscription_id", subscriptionID))
}

// WithTaskKind tags a logger with the scheduled-task kind it is executing.
func WithTaskKind(logger *zap.Logger, kind string) *zap.Logger {
	return logger.With(zap.String("task_kind", kind))
}

// WithAssessmentID tags a logger with an evidence assessment id.
func WithAssessmentID(logger *zap.Logger, assessmentID string) *zap.Logger {
	return logger.With(zap.String("assessment_id", assessmentID))
}
