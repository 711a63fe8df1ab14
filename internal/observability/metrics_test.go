package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesAnalysisMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("/v1/analyses", http.MethodPost, http.StatusOK, 120*time.Millisecond)
	m.ObserveUpstream("generate_content", http.StatusServiceUnavailable, time.Second)
	m.ObserveAttempt("transport_failure")
	m.ObserveOutcome("success")
	m.IncStaleResult()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		`copydesk_http_requests_total{method="POST",route="/v1/analyses",status="200"} 1`,
		`copydesk_upstream_requests_total{endpoint="generate_content",status="503"} 1`,
		`copydesk_analysis_attempts_total{outcome="transport_failure"} 1`,
		`copydesk_analysis_submissions_total{outcome="success"} 1`,
		`copydesk_analysis_stale_results_total 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("/", http.MethodGet, 200, time.Millisecond)
	m.ObserveUpstream("models", 200, time.Millisecond)
	m.ObserveAttempt("success")
	m.ObserveOutcome("success")
	m.IncStaleResult()
}
