// Package config loads the single settings bundle the whole ingestion core
// runs from. Every tunable named in the external-interfaces contract lives
// here, loaded once from the environment at startup; invalid values abort
// startup rather than falling back silently.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the settings bundle every binary (cmd/server, cmd/worker) loads
// at startup.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	Database DatabaseConfig
	CORS     CORSConfig

	Weather  WeatherConfig
	Biomass  BiomassConfig
	Queues   QueueConfig
	Upstream UpstreamConfig
	Retain   RetentionConfig
}

// DatabaseConfig is the relational/time-series store connection.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// CORSConfig configures the command/query surface's cross-origin policy.
type CORSConfig struct {
	AllowedOrigins string
}

// WeatherConfig holds the weather-indexing engine's thresholds (§4.2).
type WeatherConfig struct {
	StationRadiusKM    float64
	DroughtThresholdMM float64
	DroughtSevereDays  int
	FloodThresholdMM   float64
	FloodSevereMM      float64
	FloodCumulative3Day float64
	HeatThresholdC     float64
	HeatSevereC        float64
}

// BiomassConfig holds the satellite biomass reducer's tunables (§4.3).
type BiomassConfig struct {
	BaselineWindowDays int
	MinObservations    int
	MaxCloudCover      float64
}

// QueueConfig holds per-queue worker-pool concurrency caps (§4.5).
type QueueConfig struct {
	DefaultConcurrency int
	WeatherConcurrency int
	PlanetConcurrency  int
	DamageConcurrency  int
}

// UpstreamConfig holds the four external clients' endpoints, bearer tokens
// and rate-limit parameters (§4.1).
type UpstreamConfig struct {
	StationBaseURL   string
	StationToken     string
	StationRateRPM   int
	StationBurst     int

	SatelliteBaseURL string
	SatelliteToken   string
	SatelliteRateRPM int
	SatelliteBurst   int

	CIDStoreBaseURL string
	CIDStoreToken   string
	CIDStoreRateRPM int
	CIDStoreBurst   int

	RedisAddr string
}

// RetentionConfig holds the retention windows named in §6: samples 2y,
// biomass 3y, logs 90d.
type RetentionConfig struct {
	SampleDays  int
	BiomassDays int
	LogDays     int
}

// Load reads the environment (and a local .env file, when present) into a
// validated Config. It returns an error rather than partially-defaulting
// when a value is present but malformed, so callers can abort startup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	defaultCORSOrigins := "http://localhost:3000,http://localhost:3001"
	if env == "production" {
		defaultCORSOrigins = ""
	}

	cfg := &Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "ingestcore_dev"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		},
	}

	var err error
	if cfg.Weather, err = loadWeatherConfig(); err != nil {
		return nil, err
	}
	if cfg.Biomass, err = loadBiomassConfig(); err != nil {
		return nil, err
	}
	if cfg.Queues, err = loadQueueConfig(); err != nil {
		return nil, err
	}
	if cfg.Upstream, err = loadUpstreamConfig(); err != nil {
		return nil, err
	}
	if cfg.Retain, err = loadRetentionConfig(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadWeatherConfig() (WeatherConfig, error) {
	var w WeatherConfig
	var err error
	if w.StationRadiusKM, err = getEnvFloat("WEATHER_STATION_RADIUS_KM", 25); err != nil {
		return w, err
	}
	if w.DroughtThresholdMM, err = getEnvFloat("DROUGHT_THRESHOLD_MM", 100); err != nil {
		return w, err
	}
	if w.DroughtSevereDays, err = getEnvInt("DROUGHT_SEVERE_DAYS", 14); err != nil {
		return w, err
	}
	if w.FloodThresholdMM, err = getEnvFloat("FLOOD_THRESHOLD_MM", 50); err != nil {
		return w, err
	}
	if w.FloodSevereMM, err = getEnvFloat("FLOOD_SEVERE_MM", 100); err != nil {
		return w, err
	}
	if w.FloodCumulative3Day, err = getEnvFloat("FLOOD_CUMULATIVE_3DAY", 100); err != nil {
		return w, err
	}
	if w.HeatThresholdC, err = getEnvFloat("HEAT_THRESHOLD_CELSIUS", 35); err != nil {
		return w, err
	}
	if w.HeatSevereC, err = getEnvFloat("HEAT_SEVERE_CELSIUS", 40); err != nil {
		return w, err
	}
	return w, nil
}

func loadBiomassConfig() (BiomassConfig, error) {
	var b BiomassConfig
	var err error
	if b.BaselineWindowDays, err = getEnvInt("BIOMASS_BASELINE_WINDOW_DAYS", 30); err != nil {
		return b, err
	}
	if b.MinObservations, err = getEnvInt("BIOMASS_MIN_OBSERVATIONS", 5); err != nil {
		return b, err
	}
	if b.MaxCloudCover, err = getEnvFloat("BIOMASS_MAX_CLOUD_COVER", 0.3); err != nil {
		return b, err
	}
	return b, nil
}

func loadQueueConfig() (QueueConfig, error) {
	var q QueueConfig
	var err error
	if q.DefaultConcurrency, err = getEnvInt("QUEUE_DEFAULT_CONCURRENCY", 4); err != nil {
		return q, err
	}
	if q.WeatherConcurrency, err = getEnvInt("QUEUE_WEATHER_CONCURRENCY", 4); err != nil {
		return q, err
	}
	if q.PlanetConcurrency, err = getEnvInt("QUEUE_PLANET_CONCURRENCY", 4); err != nil {
		return q, err
	}
	if q.DamageConcurrency, err = getEnvInt("QUEUE_DAMAGE_CONCURRENCY", 4); err != nil {
		return q, err
	}
	return q, nil
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	var u UpstreamConfig
	var err error

	u.StationBaseURL = getEnv("STATION_BASE_URL", "https://api.weatherstation.example/v1")
	u.StationToken = getEnv("STATION_BEARER_TOKEN", "")
	if u.StationRateRPM, err = getEnvInt("STATION_RATE_RPM", 60); err != nil {
		return u, err
	}
	if u.StationBurst, err = getEnvInt("STATION_RATE_BURST", 10); err != nil {
		return u, err
	}

	u.SatelliteBaseURL = getEnv("SATELLITE_BASE_URL", "https://api.satellite.example/v1")
	u.SatelliteToken = getEnv("SATELLITE_BEARER_TOKEN", "")
	if u.SatelliteRateRPM, err = getEnvInt("SATELLITE_RATE_RPM", 30); err != nil {
		return u, err
	}
	if u.SatelliteBurst, err = getEnvInt("SATELLITE_RATE_BURST", 5); err != nil {
		return u, err
	}

	u.CIDStoreBaseURL = getEnv("CIDSTORE_BASE_URL", "https://api.cidstore.example/v1")
	u.CIDStoreToken = getEnv("CIDSTORE_BEARER_TOKEN", "")
	if u.CIDStoreRateRPM, err = getEnvInt("CIDSTORE_RATE_RPM", 60); err != nil {
		return u, err
	}
	if u.CIDStoreBurst, err = getEnvInt("CIDSTORE_RATE_BURST", 10); err != nil {
		return u, err
	}

	u.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")

	return u, nil
}

func loadRetentionConfig() (RetentionConfig, error) {
	var r RetentionConfig
	var err error
	if r.SampleDays, err = getEnvInt("RETENTION_SAMPLE_DAYS", 730); err != nil {
		return r, err
	}
	if r.BiomassDays, err = getEnvInt("RETENTION_BIOMASS_DAYS", 1095); err != nil {
		return r, err
	}
	if r.LogDays, err = getEnvInt("RETENTION_LOG_DAYS", 90); err != nil {
		return r, err
	}
	return r, nil
}

// Validate rejects settings combinations that would make the pipeline
// produce nonsensical results; startup aborts on a non-nil return.
func (c *Config) Validate() error {
	if c.Weather.StationRadiusKM <= 0 {
		return fmt.Errorf("config: WEATHER_STATION_RADIUS_KM must be positive")
	}
	if c.Weather.DroughtSevereDays <= 0 {
		return fmt.Errorf("config: DROUGHT_SEVERE_DAYS must be positive")
	}
	if c.Weather.HeatSevereC <= c.Weather.HeatThresholdC {
		return fmt.Errorf("config: HEAT_SEVERE_CELSIUS must exceed HEAT_THRESHOLD_CELSIUS")
	}
	if c.Biomass.MaxCloudCover < 0 || c.Biomass.MaxCloudCover > 1 {
		return fmt.Errorf("config: BIOMASS_MAX_CLOUD_COVER must be in [0,1]")
	}
	if c.Biomass.MinObservations <= 0 {
		return fmt.Errorf("config: BIOMASS_MIN_OBSERVATIONS must be positive")
	}
	for name, v := range map[string]int{
		"QUEUE_DEFAULT_CONCURRENCY": c.Queues.DefaultConcurrency,
		"QUEUE_WEATHER_CONCURRENCY": c.Queues.WeatherConcurrency,
		"QUEUE_PLANET_CONCURRENCY":  c.Queues.PlanetConcurrency,
		"QUEUE_DAMAGE_CONCURRENCY":  c.Queues.DamageConcurrency,
	} {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.Upstream.StationRateRPM <= 0 || c.Upstream.SatelliteRateRPM <= 0 || c.Upstream.CIDStoreRateRPM <= 0 {
		return fmt.Errorf("config: upstream rate limits must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return v, nil
}
