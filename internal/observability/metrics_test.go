package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("ROLE", true, false)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "gatehouse_decisions_total") {
		t.Fatalf("expected body to contain gatehouse_decisions_total, got: %s", body)
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

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "gatehouse_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
}

func TestObserveDecisionPartitionsByTierAndOutcome(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("USER_DENY", false, false)
	metrics.ObserveDecision("USER_DENY", false, true)
	metrics.ObserveDecision("SUPERUSER", true, false)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	if !strings.Contains(body, `gatehouse_decisions_total{allowed="false",cached="false",tier="USER_DENY"} 1`) {
		t.Fatalf("expected uncached USER_DENY count, got: %s", body)
	}
	if !strings.Contains(body, `gatehouse_decisions_total{allowed="false",cached="true",tier="USER_DENY"} 1`) {
		t.Fatalf("expected cached USER_DENY count, got: %s", body)
	}
	if !strings.Contains(body, `gatehouse_decisions_total{allowed="true",cached="false",tier="SUPERUSER"} 1`) {
		t.Fatalf("expected SUPERUSER count, got: %s", body)
	}
}
