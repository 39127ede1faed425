package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		outputPaths []string
	}{
		{name: "default stdout", level: "info", outputPaths: nil},
		{name: "debug level", level: "debug", outputPaths: []string{"stdout"}},
		{name: "warn level", level: "warn", outputPaths: []string{"stdout"}},
		{name: "error level", level: "error", outputPaths: []string{"stdout"}},
		{name: "invalid level defaults to info", level: "invalid", outputPaths: []string{"stdout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.outputPaths)
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("test message")
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	logger, err := New("info", []string{"stdout"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		WithRequestID(logger, "req-12345").Info("with request id")
		WithComponent(logger, "scheduler").Info("with component")
		WithPlotID(logger, "plot-1").Info("with plot id")
		WithSubscriptionID(logger, "sub-1").Info("with subscription id")
		WithTaskKind(logger, "sweep-weather").Info("with task kind")
		WithAssessmentID(logger, "assess-1").Info("with assessment id")
	})
}
