package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and cache behavior.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	cacheHits   = make(map[string]int64)
	cacheMisses = make(map[string]int64)

	epochBumps        int64
	statusTransitions = make(map[string]int64)
	jobsSeeded        int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

// RecordRequest increments the request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordCacheHit counts a served-from-cache read for the given shape
// (list, detail, history).
func RecordCacheHit(shape string) {
	mu.Lock()
	defer mu.Unlock()
	cacheHits[shape]++
}

// RecordCacheMiss counts a read that fell through to the store.
func RecordCacheMiss(shape string) {
	mu.Lock()
	defer mu.Unlock()
	cacheMisses[shape]++
}

// RecordEpochBump counts a successful advance of the shared epoch counter.
func RecordEpochBump() {
	mu.Lock()
	defer mu.Unlock()
	epochBumps++
}

// RecordStatusTransition counts an applied (non-no-op) status change by
// target status.
func RecordStatusTransition(status string) {
	mu.Lock()
	defer mu.Unlock()
	statusTransitions[status]++
}

// RecordJobsSeeded counts jobs created by the bulk seeder.
func RecordJobsSeeded(n int) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	jobsSeeded += int64(n)
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP jobtrack_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE jobtrack_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "jobtrack_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP jobtrack_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE jobtrack_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP jobtrack_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE jobtrack_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "jobtrack_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "jobtrack_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP jobtrack_cache_hits_total Cache hits by read shape\n")
	b.WriteString("# TYPE jobtrack_cache_hits_total counter\n")
	for _, shape := range sortedKeys(cacheHits) {
		fmt.Fprintf(&b, "jobtrack_cache_hits_total{shape=\"%s\"} %d\n", shape, cacheHits[shape])
	}

	b.WriteString("# HELP jobtrack_cache_misses_total Cache misses by read shape\n")
	b.WriteString("# TYPE jobtrack_cache_misses_total counter\n")
	for _, shape := range sortedKeys(cacheMisses) {
		fmt.Fprintf(&b, "jobtrack_cache_misses_total{shape=\"%s\"} %d\n", shape, cacheMisses[shape])
	}

	b.WriteString("# HELP jobtrack_cache_epoch_bumps_total Successful epoch increments\n")
	b.WriteString("# TYPE jobtrack_cache_epoch_bumps_total counter\n")
	fmt.Fprintf(&b, "jobtrack_cache_epoch_bumps_total %d\n", epochBumps)

	b.WriteString("# HELP jobtrack_status_transitions_total Applied status transitions by target status\n")
	b.WriteString("# TYPE jobtrack_status_transitions_total counter\n")
	for _, status := range sortedKeys(statusTransitions) {
		fmt.Fprintf(&b, "jobtrack_status_transitions_total{status=\"%s\"} %d\n", status, statusTransitions[status])
	}

	b.WriteString("# HELP jobtrack_jobs_seeded_total Jobs created by the bulk seeder\n")
	b.WriteString("# TYPE jobtrack_jobs_seeded_total counter\n")
	fmt.Fprintf(&b, "jobtrack_jobs_seeded_total %d\n", jobsSeeded)

	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
