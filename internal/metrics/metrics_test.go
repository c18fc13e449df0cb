package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("GET", "/v1/jobs", 200, 42)

	out := Export()
	if !strings.Contains(out, "jobtrack_http_requests_total{method=\"GET\",path=\"/v1/jobs\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for GET /v1/jobs in export, got:\n%s", out)
	}
	if !strings.Contains(out, "jobtrack_http_request_duration_ms_sum") || !strings.Contains(out, "jobtrack_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordCacheMetrics(t *testing.T) {
	RecordCacheHit("detail")
	RecordCacheMiss("list")
	RecordCacheMiss("list")

	out := Export()
	if !strings.Contains(out, "jobtrack_cache_hits_total{shape=\"detail\"} 1") {
		t.Fatalf("expected detail cache hit in export, got:\n%s", out)
	}
	if !strings.Contains(out, "jobtrack_cache_misses_total{shape=\"list\"} 2") {
		t.Fatalf("expected two list cache misses in export, got:\n%s", out)
	}
}

func TestRecordEpochAndTransitionMetrics(t *testing.T) {
	RecordEpochBump()
	RecordStatusTransition("COMPLETED")
	RecordJobsSeeded(10)
	RecordJobsSeeded(0)

	out := Export()
	if !strings.Contains(out, "jobtrack_cache_epoch_bumps_total") {
		t.Fatalf("expected epoch bump counter in export, got:\n%s", out)
	}
	if !strings.Contains(out, "jobtrack_status_transitions_total{status=\"COMPLETED\"} 1") {
		t.Fatalf("expected COMPLETED transition counter in export, got:\n%s", out)
	}
	if !strings.Contains(out, "jobtrack_jobs_seeded_total 10") {
		t.Fatalf("expected seeded jobs counter in export, got:\n%s", out)
	}
}
