package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if ok {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "HEAT_SEVERE_CELSIUS", "HEAT_THRESHOLD_CELSIUS", "BIOMASS_MAX_CLOUD_COVER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Weather.StationRadiusKM)
	assert.Equal(t, 4, cfg.Queues.DefaultConcurrency)
	assert.Equal(t, 730, cfg.Retain.SampleDays)
}

func TestLoadInvalidIntAborts(t *testing.T) {
	os.Setenv("QUEUE_DEFAULT_CONCURRENCY", "not-a-number")
	defer os.Unsetenv("QUEUE_DEFAULT_CONCURRENCY")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadHeatOrdering(t *testing.T) {
	cfg := &Config{
		Weather: WeatherConfig{HeatThresholdC: 40, HeatSevereC: 35, DroughtSevereDays: 1, StationRadiusKM: 1},
		Biomass: BiomassConfig{MinObservations: 1, MaxCloudCover: 0.2},
		Queues:  QueueConfig{DefaultConcurrency: 1, WeatherConcurrency: 1, PlanetConcurrency: 1, DamageConcurrency: 1},
		Upstream: UpstreamConfig{StationRateRPM: 1, SatelliteRateRPM: 1, CIDStoreRateRPM: 1},
	}
	assert.Error(t, cfg.Validate())
}
