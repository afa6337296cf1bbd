package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// Metrics stores application metrics. It doubles as the analysis pipeline's
// observer.
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	AnalysesTotal      uint64
	AnalysesRunning    uint64
	AnalysesDone       uint64
	AnalysesFailed     uint64
	Hunts              uint64
	StartTime          time.Time

	mu            sync.Mutex
	failedByStage map[analysis.Stage]uint64
	queueDepth    func() int
	queueCapacity int
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now(), failedByStage: map[analysis.Stage]uint64{}}
}

// TrackQueue registers the job queue's depth gauge.
func (m *Metrics) TrackQueue(depth func() int, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = depth
	m.queueCapacity = capacity
}

func (m *Metrics) JobStarted() {
	atomic.AddUint64(&m.AnalysesTotal, 1)
	atomic.AddUint64(&m.AnalysesRunning, 1)
}

func (m *Metrics) JobDone() {
	atomic.AddUint64(&m.AnalysesRunning, ^uint64(0))
	atomic.AddUint64(&m.AnalysesDone, 1)
}

func (m *Metrics) JobFailed(stage analysis.Stage) {
	atomic.AddUint64(&m.AnalysesRunning, ^uint64(0))
	atomic.AddUint64(&m.AnalysesFailed, 1)
	m.mu.Lock()
	m.failedByStage[stage]++
	m.mu.Unlock()
}

func (m *Metrics) HuntsSubmitted(n int) {
	atomic.AddUint64(&m.Hunts, uint64(n))
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.Lock()
	byStage := make(map[string]uint64, len(m.failedByStage))
	for s, n := range m.failedByStage {
		byStage[string(s)] = n
	}
	depth, capacity := 0, m.queueCapacity
	if m.queueDepth != nil {
		depth = m.queueDepth()
	}
	m.mu.Unlock()

	return map[string]interface{}{
		"requests_total":           atomic.LoadUint64(&m.RequestsTotal),
		"requests_in_progress":     atomic.LoadUint64(&m.RequestsInProgress),
		"requests_success":         atomic.LoadUint64(&m.RequestsSuccess),
		"requests_failed":          atomic.LoadUint64(&m.RequestsFailed),
		"analyses_total":           atomic.LoadUint64(&m.AnalysesTotal),
		"analyses_running":         atomic.LoadUint64(&m.AnalysesRunning),
		"analyses_done":            atomic.LoadUint64(&m.AnalysesDone),
		"analyses_failed":          atomic.LoadUint64(&m.AnalysesFailed),
		"analyses_failed_by_stage": byStage,
		"hunts_submitted":          atomic.LoadUint64(&m.Hunts),
		"queue_depth":              depth,
		"queue_capacity":           capacity,
		"uptime_seconds":           time.Since(m.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&m.RequestsTotal, 1)
		atomic.AddUint64(&m.RequestsInProgress, 1)
		defer atomic.AddUint64(&m.RequestsInProgress, ^uint64(0))

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&m.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&m.RequestsFailed, 1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
