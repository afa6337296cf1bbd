package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetCallerFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"grr-prod": "k-123"})(okHandler)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, ""},
		{"bearer", "Bearer k-123", http.StatusOK, "grr-prod"},
		{"bare key", "k-123", http.StatusOK, "grr-prod"},
		{"bearer only", "Bearer ", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/grr/webhook", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2, 0)
	defer limiter.Close()
	h := RateLimit(limiter)(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/grr/webhook", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// another source address has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/grr/webhook", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubChecker struct{ err error }

func (s stubChecker) Check(context.Context) error { return s.err }

func TestAPIKeyAuth_CustomHeader(t *testing.T) {
	h := APIKeyAuth(map[string]string{"grr-prod": "k-123", "grr-lab": "k-456"})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/grr/webhook", nil)
	req.Header.Set(HeaderAPIKey, "k-456")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grr-lab", rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"database": stubChecker{}})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{
		"database": stubChecker{err: errors.New("connection refused")},
		"queue":    &QueueHealthChecker{Depth: func() int { return 1 }, Capacity: 4},
	})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Checks["database"].Status)
	assert.Equal(t, "healthy", body.Checks["queue"].Status)
}

func TestQueueHealthChecker(t *testing.T) {
	full := &QueueHealthChecker{Depth: func() int { return 4 }, Capacity: 4}
	assert.Error(t, full.Check(context.Background()))
}

func TestReadinessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadinessHandler(func() bool { return false })(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics()
	m.TrackQueue(func() int { return 3 }, 256)

	m.JobStarted()
	m.JobStarted()
	m.JobDone()
	m.JobFailed(analysis.StageDownloading)
	m.HuntsSubmitted(2)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap["analyses_total"])
	assert.Equal(t, uint64(0), snap["analyses_running"])
	assert.Equal(t, uint64(1), snap["analyses_failed"])
	assert.Equal(t, map[string]uint64{"downloading": 1}, snap["analyses_failed_by_stage"])
	assert.Equal(t, uint64(2), snap["hunts_submitted"])
	assert.Equal(t, 3, snap["queue_depth"])
	assert.Equal(t, 256, snap["queue_capacity"])
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap["requests_total"])
	assert.Equal(t, uint64(1), snap["requests_success"])
	assert.Equal(t, uint64(1), snap["requests_failed"])
	assert.Equal(t, uint64(0), snap["requests_in_progress"])
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/grr/webhook", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "/grr/webhook", line["path"])
	assert.Equal(t, float64(503), line["status"])
}

func TestValidateAnalysisID(t *testing.T) {
	assert.NoError(t, ValidateAnalysisID("C.1234567890abcdef_F1A2B3"))
	assert.Error(t, ValidateAnalysisID(""))
	assert.Error(t, ValidateAnalysisID("no-separator"))
	assert.Error(t, ValidateAnalysisID("C.1_../../etc"))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
	assert.Equal(t, 7, ValidateDays(-1))
	assert.Equal(t, 365, ValidateDays(9999))
}

func TestParseQueryInts(t *testing.T) {
	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = ParseLimit("50")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = ParseLimit("ten")
	assert.Error(t, err)

	n, err = ParseDays("400")
	require.NoError(t, err)
	assert.Equal(t, 365, n)

	_, err = ParseDays("1.5")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "analyst\tname", SanitizeString("  analyst\x00\x1b\tname\r "))
	assert.Len(t, SanitizeString(strings.Repeat("a", 1000)), 256)
}

func TestRateLimiter_RefillAndSweep(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	defer limiter.Close()
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("grr:10.0.0.1"))
	assert.False(t, limiter.Allow("grr:10.0.0.1"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("grr:10.0.0.1"))
	assert.Equal(t, 1, limiter.Len())

	now = now.Add(bucketIdleTTL + time.Second)
	limiter.sweep(bucketIdleTTL)
	assert.Equal(t, 0, limiter.Len())
}
