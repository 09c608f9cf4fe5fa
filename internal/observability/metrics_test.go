package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveJob("lowstock:scan", nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `catalog_jobs_total{outcome="success",task="lowstock:scan"} 1`) {
		t.Fatalf("expected body to contain catalog_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "catalog_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "catalog_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestUpstreamAndLowStockMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveUpstream("list products", 200, 20*time.Millisecond)
	metrics.ObserveUpstream("list products", 0, time.Second)
	metrics.ObserveJob("lowstock:scan", errors.New("boom"))
	metrics.SetLowStock(4, 1)

	body := scrape(t, metrics)
	for _, want := range []string{
		`catalog_upstream_requests_total{code="200",op="list products"} 1`,
		`catalog_upstream_requests_total{code="0",op="list products"} 1`,
		`catalog_jobs_total{outcome="failure",task="lowstock:scan"} 1`,
		`catalog_low_stock_products{level="critical"} 1`,
		`catalog_low_stock_products{level="low"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveUpstream("stats", 500, time.Millisecond)
	metrics.ObserveJob("x", nil)
	metrics.SetLowStock(1, 1)
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
