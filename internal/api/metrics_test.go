package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetricsMiddlewareRecordsRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newHTTPMetrics(reg)

	handler := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/42", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}

	if got := testutil.ToFloat64(metrics.requestTotal.WithLabelValues(http.MethodGet, "/api/v1/*", "5xx")); got != 1 {
		t.Fatalf("expected request counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.requestErrors.WithLabelValues(http.MethodGet, "/api/v1/*", "500")); got != 1 {
		t.Fatalf("expected error counter 1, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	foundDuration := false
	for _, mf := range mfs {
		if mf.GetName() != "ilanhub_http_request_duration_seconds" {
			continue
		}
		foundDuration = true
		if len(mf.Metric) != 1 {
			t.Fatalf("expected one latency series, got %d", len(mf.Metric))
		}
		if got := mf.Metric[0].GetHistogram().GetSampleCount(); got != 1 {
			t.Fatalf("expected one latency sample, got %d", got)
		}
	}
	if !foundDuration {
		t.Fatal("did not find latency histogram")
	}
}

func TestRequestMetricsMiddlewareSkipsMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newHTTPMetrics(reg)

	handler := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := testutil.CollectAndCount(metrics.requestTotal); got != 0 {
		t.Fatalf("expected no request samples for /metrics, got %d", got)
	}
}

func TestMetricsHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newHTTPMetrics(reg)

	observed := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	observed.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	metricsHandler(reg).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, name := range []string{
		"ilanhub_http_requests_total",
		"ilanhub_http_request_duration_seconds",
		"ilanhub_http_errors_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected scrape output to contain %q", name)
		}
	}
}

func TestRequestMetricsMiddlewareTracksInFlightByArea(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newHTTPMetrics(reg)

	var during float64
	handler := requestMetricsMiddleware(metrics, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(metrics.inFlight.WithLabelValues("listings"))
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/listings/42/photos", nil))

	if during != 1 {
		t.Fatalf("expected one in-flight listings request while serving, got %f", during)
	}
	if got := testutil.ToFloat64(metrics.inFlight.WithLabelValues("listings")); got != 0 {
		t.Fatalf("expected in-flight gauge back at 0, got %f", got)
	}
}

func TestAPIArea(t *testing.T) {
	tests := map[string]string{
		"/api/v1/listings":             "listings",
		"/api/v1/admin/listings/3":     "admin",
		"/api/v1/user/favorites":       "user",
		"/api/v1/conversations/9/read": "conversations",
		"/api/v1/unknown/thing":        "other",
		"/healthz":                     "other",
	}
	for path, want := range tests {
		if got := apiArea(path); got != want {
			t.Fatalf("apiArea(%q) = %q, want %q", path, got, want)
		}
	}
}
