package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if metrics.HTTPRequestsTotal == nil {
			t.Error("HTTPRequestsTotal is nil")
		}
		if metrics.HTTPRequestDuration == nil {
			t.Error("HTTPRequestDuration is nil")
		}
		if metrics.HTTPResponseSize == nil {
			t.Error("HTTPResponseSize is nil")
		}
	})

	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.HTTPRequestDuration.WithLabelValues("GET", "/test").Observe(0)
		metrics.HTTPResponseSize.WithLabelValues("GET", "/test").Observe(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expected := []string{
			"chronicle_http_requests_total",
			"chronicle_http_request_duration_seconds",
			"chronicle_http_response_size_bytes",
		}
		for _, name := range expected {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("counts requests with status labels", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))

		req := httptest.NewRequest("GET", "/api/v1/audit/records", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		expected := `
# HELP chronicle_http_requests_total Total number of HTTP requests
# TYPE chronicle_http_requests_total counter
chronicle_http_requests_total{method="GET",path="/api/v1/audit/records",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})

	t.Run("captures non-200 status", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))

		req := httptest.NewRequest("GET", "/missing", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		expected := `
# HELP chronicle_http_requests_total Total number of HTTP requests
# TYPE chronicle_http_requests_total counter
chronicle_http_requests_total{method="GET",path="/missing",status="404"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})

	t.Run("observes duration and response size", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(make([]byte, 512))
		}))

		req := httptest.NewRequest("GET", "/export", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
			t.Errorf("Expected 1 duration series, got %d", count)
		}
		if count := testutil.CollectAndCount(metrics.HTTPResponseSize); count != 1 {
			t.Errorf("Expected 1 response size series, got %d", count)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/x", "200").Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chronicle_http_requests_total") {
		t.Error("Expected exposition output to contain chronicle_http_requests_total")
	}
}
