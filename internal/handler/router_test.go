package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/contentplanner/internal/metrics"
	"github.com/hitoshi/contentplanner/internal/middleware"
	"github.com/hitoshi/contentplanner/internal/model"
)

func TestRouter_HealthOK(t *testing.T) {
	router := NewRouter(testDeps(t))

	w := doRequest(t, router, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	deps := testDeps(t)
	deps.HealthChecker = &mockHealthChecker{err: errors.New("connection refused")}
	router := NewRouter(deps)

	w := doRequest(t, router, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordApproval()

	deps := testDeps(t)
	deps.MetricsHandler = metrics.Handler(reg)
	router := NewRouter(deps)

	w := doRequest(t, router, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "contentplanner_approvals_total 1") {
		t.Errorf("メトリクスが出力されていない: %s", w.Body.String())
	}
}

func TestRouter_APIRequiresUserID(t *testing.T) {
	router := NewRouter(testDeps(t))

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/websites"},
		{http.MethodGet, "/api/websites/site-1/schedule"},
		{http.MethodPost, "/api/websites/site-1/posts/ideas"},
		{http.MethodPost, "/api/posts/post-1/approve"},
	}
	for _, p := range paths {
		w := doRequest(t, router, p.method, p.path, "", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", p.method, p.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	router := NewRouter(testDeps(t))

	w := doRequest(t, router, http.MethodGet, "/api/websites", "user-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_PreflightSkipsIdentity(t *testing.T) {
	router := NewRouter(testDeps(t))

	w := doRequest(t, router, http.MethodOptions, "/api/websites", "", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRouter_GenerationRateLimit(t *testing.T) {
	deps := testDeps(t)
	deps.RateLimiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 1))
	t.Cleanup(deps.RateLimiter.Stop)
	deps.PostService = &mockPostService{
		ideasFn: func(ctx context.Context, userID, websiteID string, count int) ([]*model.PostTheme, error) {
			return []*model.PostTheme{}, nil
		},
	}
	router := NewRouter(deps)

	w := doRequest(t, router, http.MethodPost, "/api/websites/site-1/posts/ideas", "user-1", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("1回目 status = %d, want %d", w.Code, http.StatusCreated)
	}

	// アイデア生成と計画実行は同じ制限を共有する
	w = doRequest(t, router, http.MethodPost, "/api/websites/site-1/plan", "user-1", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目 status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 一般APIは制限されない
	w = doRequest(t, router, http.MethodGet, "/api/websites/site-1/posts", "user-1", "")
	if w.Code != http.StatusOK {
		t.Errorf("一般API status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	deps := testDeps(t)
	deps.WebsiteService = &mockWebsiteService{
		listFn: func(ctx context.Context, userID string) ([]*model.Website, error) {
			panic("unexpected")
		},
	}
	router := NewRouter(deps)

	w := doRequest(t, router, http.MethodGet, "/api/websites", "user-1", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := NewRouter(testDeps(t))

	w := doRequest(t, router, http.MethodGet, "/api/unknown", "user-1", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewWebsiteNotFoundError("x"), http.StatusNotFound},
		{model.NewPostNotFoundError("x"), http.StatusNotFound},
		{model.NewInvalidFrequencyError(30), http.StatusBadRequest},
		{model.NewInvalidWeekdayError("funday"), http.StatusBadRequest},
		{model.NewInvalidDateError("2024-13-01"), http.StatusBadRequest},
		{model.NewInvalidIdeaCountError(0), http.StatusBadRequest},
		{model.NewPostNotPendingError(model.PostStatusApproved), http.StatusConflict},
		{model.NewInvalidStatusTransitionError(model.PostStatusPublished, model.PostStatusPending), http.StatusConflict},
		{model.NewGenerationFailedError(), http.StatusBadGateway},
		{model.NewPostUpdateFailedError(), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}
