package metrics

import (
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestRecordClientRequest(t *testing.T) {
	Init()
	tests := []struct {
		name     string
		client   string
		status   string
		duration time.Duration
	}{
		{"success", "stationclient", "success", 200 * time.Millisecond},
		{"failure", "satclient", "failure", 1 * time.Second},
		{"timeout", "cidstore", "timeout", 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordClientRequest(tt.client, tt.status, tt.duration)
		})
	}
}

func TestRecordClientError(t *testing.T) {
	Init()
	RecordClientError("stationclient", "transient")
	RecordClientError("satclient", "permanent")
}

func TestRecordRateLimitWait(t *testing.T) {
	Init()
	RecordRateLimitWait("stationclient", 250*time.Millisecond)
}

func TestCacheMetrics(t *testing.T) {
	Init()
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError("get")
	RecordCacheError("lease")
}

func TestSchedulerMetrics(t *testing.T) {
	Init()
	RecordSchedulerTick("sweep-weather")
	RecordTaskExecution("sweep-weather", "weather", "success", 2*time.Second)
	RecordTaskQuarantined("check-subscriptions")
	RecordDedupAbsorbed("sweep-weather")
	SetQueueDepth("weather", 3)
}

func TestEngineAndEvidenceMetrics(t *testing.T) {
	Init()
	RecordWeatherAnomaly()
	RecordBiomassQualityAlert()
	RecordEvidencePublished()
	RecordEvidenceConflict()
}
