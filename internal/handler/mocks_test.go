package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/contentplanner/internal/middleware"
	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/planner"
	"github.com/hitoshi/contentplanner/internal/post"
	"github.com/hitoshi/contentplanner/internal/posting"
	"github.com/hitoshi/contentplanner/internal/schedule"
	"github.com/hitoshi/contentplanner/internal/website"
)

// --- モック定義 ---

type mockWebsiteService struct {
	listFn   func(ctx context.Context, userID string) ([]*model.Website, error)
	getFn    func(ctx context.Context, userID, websiteID string) (*model.Website, error)
	createFn func(ctx context.Context, userID string, in website.Input) (*model.Website, error)
	updateFn func(ctx context.Context, userID, websiteID string, in website.Input) (*model.Website, error)
	deleteFn func(ctx context.Context, userID, websiteID string) error
}

func (m *mockWebsiteService) List(ctx context.Context, userID string) ([]*model.Website, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockWebsiteService) Get(ctx context.Context, userID, websiteID string) (*model.Website, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, websiteID)
	}
	return nil, model.NewWebsiteNotFoundError(websiteID)
}
func (m *mockWebsiteService) Create(ctx context.Context, userID string, in website.Input) (*model.Website, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, errors.New("not implemented")
}
func (m *mockWebsiteService) Update(ctx context.Context, userID, websiteID string, in website.Input) (*model.Website, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, websiteID, in)
	}
	return nil, errors.New("not implemented")
}
func (m *mockWebsiteService) Delete(ctx context.Context, userID, websiteID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, websiteID)
	}
	return nil
}

type mockScheduleService struct {
	getFn       func(ctx context.Context, userID, websiteID string) (*posting.Schedule, error)
	setDaysFn   func(ctx context.Context, userID, websiteID string, days []model.PostingDay) (*posting.Schedule, error)
	frequencyFn func(ctx context.Context, userID, websiteID string, n int) (*posting.Schedule, error)
	toggleFn    func(ctx context.Context, userID, websiteID, day string) (*posting.Schedule, error)
}

func (m *mockScheduleService) Get(ctx context.Context, userID, websiteID string) (*posting.Schedule, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, websiteID)
	}
	return &posting.Schedule{WebsiteID: websiteID, PostingDays: schedule.DefaultPostingDays(), PostingFrequency: 3, IsDefault: true}, nil
}
func (m *mockScheduleService) SetPostingDays(ctx context.Context, userID, websiteID string, days []model.PostingDay) (*posting.Schedule, error) {
	if m.setDaysFn != nil {
		return m.setDaysFn(ctx, userID, websiteID, days)
	}
	return nil, errors.New("not implemented")
}
func (m *mockScheduleService) UpdateFrequency(ctx context.Context, userID, websiteID string, n int) (*posting.Schedule, error) {
	if m.frequencyFn != nil {
		return m.frequencyFn(ctx, userID, websiteID, n)
	}
	return nil, errors.New("not implemented")
}
func (m *mockScheduleService) ToggleDay(ctx context.Context, userID, websiteID, day string) (*posting.Schedule, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, userID, websiteID, day)
	}
	return nil, errors.New("not implemented")
}

type mockSlotService struct {
	nextSlotFn   func(ctx context.Context, userID, websiteID string) (*post.Slot, error)
	weekStatusFn func(ctx context.Context, userID, websiteID, from string) (*schedule.WeekFill, error)
}

func (m *mockSlotService) NextSlot(ctx context.Context, userID, websiteID string) (*post.Slot, error) {
	if m.nextSlotFn != nil {
		return m.nextSlotFn(ctx, userID, websiteID)
	}
	return nil, errors.New("not implemented")
}
func (m *mockSlotService) WeekStatus(ctx context.Context, userID, websiteID, from string) (*schedule.WeekFill, error) {
	if m.weekStatusFn != nil {
		return m.weekStatusFn(ctx, userID, websiteID, from)
	}
	return nil, errors.New("not implemented")
}

type mockPostService struct {
	listFn       func(ctx context.Context, userID, websiteID string) ([]*model.PostTheme, error)
	ideasFn      func(ctx context.Context, userID, websiteID string, count int) ([]*model.PostTheme, error)
	approveFn    func(ctx context.Context, userID, postID string) (*model.PostTheme, error)
	declineFn    func(ctx context.Context, userID, postID string) (*model.PostTheme, error)
	transitionFn func(ctx context.Context, userID, postID, status string) (*model.PostTheme, error)
	editFn       func(ctx context.Context, userID, postID string, in post.EditInput) (*model.PostTheme, error)
	deleteFn     func(ctx context.Context, userID, postID string) error
}

func (m *mockPostService) List(ctx context.Context, userID, websiteID string) ([]*model.PostTheme, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, websiteID)
	}
	return nil, nil
}
func (m *mockPostService) GenerateIdeas(ctx context.Context, userID, websiteID string, count int) ([]*model.PostTheme, error) {
	if m.ideasFn != nil {
		return m.ideasFn(ctx, userID, websiteID, count)
	}
	return nil, errors.New("not implemented")
}
func (m *mockPostService) Approve(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
	if m.approveFn != nil {
		return m.approveFn(ctx, userID, postID)
	}
	return nil, errors.New("not implemented")
}
func (m *mockPostService) Decline(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
	if m.declineFn != nil {
		return m.declineFn(ctx, userID, postID)
	}
	return nil, errors.New("not implemented")
}
func (m *mockPostService) Transition(ctx context.Context, userID, postID, status string) (*model.PostTheme, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, userID, postID, status)
	}
	return nil, errors.New("not implemented")
}
func (m *mockPostService) Edit(ctx context.Context, userID, postID string, in post.EditInput) (*model.PostTheme, error) {
	if m.editFn != nil {
		return m.editFn(ctx, userID, postID, in)
	}
	return nil, errors.New("not implemented")
}
func (m *mockPostService) Delete(ctx context.Context, userID, postID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, postID)
	}
	return nil
}

type mockPlanRunner struct {
	runFn func(ctx context.Context, userID, websiteID string, now time.Time) (*planner.Result, error)
}

func (m *mockPlanRunner) RunWebsite(ctx context.Context, userID, websiteID string, now time.Time) (*planner.Result, error) {
	if m.runFn != nil {
		return m.runFn(ctx, userID, websiteID, now)
	}
	return &planner.Result{WebsiteID: websiteID, Success: true}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

// testDeps は全モックを組み込んだRouterDepsを返す。
func testDeps(t *testing.T) *RouterDeps {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)
	return &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		HealthChecker:     &mockHealthChecker{},
		WebsiteService:    &mockWebsiteService{},
		ScheduleService:   &mockScheduleService{},
		PostService:       &mockPostService{},
		SlotService:       &mockSlotService{},
		PlanRunner:        &mockPlanRunner{},
	}
}

// doRequest はuserIDをX-User-IDヘッダーに設定してルーターにリクエストを送る。
func doRequest(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
