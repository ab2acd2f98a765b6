package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal          uint64
	RequestsInProgress     uint64
	RequestsSuccess        uint64
	RequestsFailed         uint64
	AuditsTotal            uint64
	AuditsRunning          uint64
	AuditsFailed           uint64
	AnalyzerTimeouts       uint64
	AnalyzerFailures       uint64
	CompletionCallFailures uint64
	CompletionParseErrors  uint64
	StartTime              time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementAudits counts an audit that passed input validation.
func IncrementAudits() {
	atomic.AddUint64(&globalMetrics.AuditsTotal, 1)
}

func IncrementAuditsRunning() {
	atomic.AddUint64(&globalMetrics.AuditsRunning, 1)
}

func DecrementAuditsRunning() {
	atomic.AddUint64(&globalMetrics.AuditsRunning, ^uint64(0))
}

// IncrementAuditsFailed counts audits that ended without a report.
func IncrementAuditsFailed() {
	atomic.AddUint64(&globalMetrics.AuditsFailed, 1)
}

func IncrementAnalyzerTimeouts() {
	atomic.AddUint64(&globalMetrics.AnalyzerTimeouts, 1)
}

// IncrementAnalyzerFailures counts analyzer runs that could not start or
// errored for a reason other than the timeout.
func IncrementAnalyzerFailures() {
	atomic.AddUint64(&globalMetrics.AnalyzerFailures, 1)
}

func IncrementCompletionCallFailures() {
	atomic.AddUint64(&globalMetrics.CompletionCallFailures, 1)
}

func IncrementCompletionParseErrors() {
	atomic.AddUint64(&globalMetrics.CompletionParseErrors, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":           atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress":     atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":         atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":          atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"audits_total":             atomic.LoadUint64(&globalMetrics.AuditsTotal),
		"audits_running":           atomic.LoadUint64(&globalMetrics.AuditsRunning),
		"audits_failed":            atomic.LoadUint64(&globalMetrics.AuditsFailed),
		"analyzer_timeouts":        atomic.LoadUint64(&globalMetrics.AnalyzerTimeouts),
		"analyzer_failures":        atomic.LoadUint64(&globalMetrics.AnalyzerFailures),
		"completion_call_failures": atomic.LoadUint64(&globalMetrics.CompletionCallFailures),
		"completion_parse_errors":  atomic.LoadUint64(&globalMetrics.CompletionParseErrors),
		"uptime_seconds":           time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
