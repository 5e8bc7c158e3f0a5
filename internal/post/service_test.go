package post

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/contentplanner/internal/generator"
	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
	"github.com/hitoshi/contentplanner/internal/sitecontent"
)

// --- モック ---

type mockWebsiteRepo struct {
	websites map[string]*model.Website
}

func (m *mockWebsiteRepo) FindByID(ctx context.Context, id string) (*model.Website, error) {
	return m.websites[id], nil
}
func (m *mockWebsiteRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Website, error) {
	return nil, nil
}
func (m *mockWebsiteRepo) ListByPlanningDay(ctx context.Context, day string) ([]*model.Website, error) {
	return nil, nil
}
func (m *mockWebsiteRepo) Create(ctx context.Context, w *model.Website) error { return nil }
func (m *mockWebsiteRepo) Update(ctx context.Context, w *model.Website) error { return nil }
func (m *mockWebsiteRepo) Delete(ctx context.Context, id string) error        { return nil }

// mockPostRepo はメモリ上の台帳。failUpdateAt番目（1始まり）のUpdateを失敗させる。
type mockPostRepo struct {
	order        []string
	posts        map[string]*model.PostTheme
	updateCalls  []string
	failUpdateAt int
	insertErr    error
}

func newMockPostRepo(posts ...*model.PostTheme) *mockPostRepo {
	m := &mockPostRepo{posts: make(map[string]*model.PostTheme)}
	for _, p := range posts {
		m.order = append(m.order, p.ID)
		m.posts[p.ID] = p.Clone()
	}
	return m
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.PostTheme, error) {
	if p, ok := m.posts[id]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}
func (m *mockPostRepo) ListByWebsite(ctx context.Context, websiteID string) ([]*model.PostTheme, error) {
	var result []*model.PostTheme
	for _, id := range m.order {
		if p, ok := m.posts[id]; ok && p.WebsiteID == websiteID {
			result = append(result, p.Clone())
		}
	}
	return result, nil
}
func (m *mockPostRepo) InsertMany(ctx context.Context, posts []*model.PostTheme) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	for _, p := range posts {
		m.order = append(m.order, p.ID)
		m.posts[p.ID] = p.Clone()
	}
	return len(posts), nil
}
func (m *mockPostRepo) Update(ctx context.Context, p *model.PostTheme) error {
	m.updateCalls = append(m.updateCalls, p.ID)
	if m.failUpdateAt > 0 && len(m.updateCalls) == m.failUpdateAt {
		return errors.New("connection reset")
	}
	if _, ok := m.posts[p.ID]; !ok {
		return repository.ErrNotFound
	}
	m.posts[p.ID] = p.Clone()
	return nil
}
func (m *mockPostRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}
func (m *mockPostRepo) DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type mockQuotas struct {
	quota schedule.DayQuota
	err   error
}

func (m *mockQuotas) Quota(ctx context.Context, websiteID string) (schedule.DayQuota, error) {
	return m.quota, m.err
}

type mockFetcher struct {
	err error
}

func (m *mockFetcher) Fetch(ctx context.Context, w *model.Website) (*sitecontent.Content, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &sitecontent.Content{Title: w.Name}, nil
}

type mockGenerator struct {
	ideas   []generator.Idea
	err     error
	lastReq generator.IdeaRequest
}

func (m *mockGenerator) GenerateIdeas(ctx context.Context, req generator.IdeaRequest) ([]generator.Idea, error) {
	m.lastReq = req
	return m.ideas, m.err
}

type mockMetrics struct {
	approvals          int
	slotFallbacks      int
	generationFailures int
}

func (m *mockMetrics) RecordPlanningRun(result string)       {}
func (m *mockMetrics) RecordPostsGenerated(count int)        {}
func (m *mockMetrics) RecordPostsPromoted(count int)         {}
func (m *mockMetrics) RecordGenerationFailure()              { m.generationFailures++ }
func (m *mockMetrics) RecordNotificationFailure()            {}
func (m *mockMetrics) RecordSlotFallback()                   { m.slotFallbacks++ }
func (m *mockMetrics) RecordPlanningLatency(d time.Duration) {}
func (m *mockMetrics) RecordApproval()                       { m.approvals++ }

// --- ヘルパー ---

var (
	mwf      = schedule.DayQuota{time.Monday: 1, time.Wednesday: 1, time.Friday: 1}
	testNow  = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) // 月曜日
	siteID   = "site-1"
	userID   = "user-1"
	otherUID = "user-2"
)

func day(d int) *time.Time {
	t := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testDeps struct {
	posts   *mockPostRepo
	quotas  *mockQuotas
	fetcher *mockFetcher
	gen     *mockGenerator
	metrics *mockMetrics
	logs    *bytes.Buffer
}

func newTestService(t *testing.T, posts ...*model.PostTheme) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		posts:   newMockPostRepo(posts...),
		quotas:  &mockQuotas{quota: mwf},
		fetcher: &mockFetcher{},
		gen:     &mockGenerator{},
		metrics: &mockMetrics{},
		logs:    &bytes.Buffer{},
	}
	websites := &mockWebsiteRepo{websites: map[string]*model.Website{
		siteID: {ID: siteID, UserID: userID, Name: "Shop", Keywords: []string{"bags"}},
	}}
	svc := NewService(websites, deps.posts, deps.quotas, deps.fetcher, deps.gen, deps.metrics, newTestLogger(deps.logs))
	svc.now = func() time.Time { return testNow }
	return svc, deps
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func ledger() []*model.PostTheme {
	return []*model.PostTheme{
		{ID: "a1", WebsiteID: siteID, SubjectMatter: "approved", Status: model.PostStatusApproved, ScheduledDate: day(10)},
		{ID: "p1", WebsiteID: siteID, SubjectMatter: "pending 1", Status: model.PostStatusPending, ScheduledDate: day(3)},
		{ID: "p2", WebsiteID: siteID, SubjectMatter: "pending 2", Status: model.PostStatusPending, ScheduledDate: day(4)},
		{ID: "p3", WebsiteID: siteID, SubjectMatter: "pending 3", Status: model.PostStatusPending},
	}
}

// --- Approve ---

func TestService_Approve_BatchForward(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	approved, err := svc.Approve(context.Background(), userID, "p2")
	if err != nil {
		t.Fatalf("Approve がエラーを返した: %v", err)
	}

	// 月曜(6/10)は承認済みで埋まっているため水曜(6/12)
	if approved.Status != model.PostStatusApproved || schedule.DateKey(*approved.ScheduledDate) != "2024-06-12" {
		t.Errorf("approved = %s %v", approved.Status, approved.ScheduledDate)
	}

	for _, id := range []string{"p1", "p3"} {
		p := deps.posts.posts[id]
		if p.Status != model.PostStatusPending {
			t.Errorf("%s: status = %s, want pending", id, p.Status)
		}
		if p.ScheduledDate == nil || schedule.DateKey(*p.ScheduledDate) != "2024-06-12" {
			t.Errorf("%s: 承認待ちのテーマが同じ日付に繰り越されていない: %v", id, p.ScheduledDate)
		}
	}
	if got := deps.posts.posts["a1"].ScheduledDate; schedule.DateKey(*got) != "2024-06-10" {
		t.Errorf("承認済みのテーマは変更しない: %v", got)
	}
	if deps.metrics.approvals != 1 {
		t.Errorf("approvals = %d, want 1", deps.metrics.approvals)
	}
}

func TestService_Approve_SecondApprovalTakesNextSlot(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	if _, err := svc.Approve(context.Background(), userID, "p2"); err != nil {
		t.Fatalf("1回目のApprove がエラーを返した: %v", err)
	}
	second, err := svc.Approve(context.Background(), userID, "p1")
	if err != nil {
		t.Fatalf("2回目のApprove がエラーを返した: %v", err)
	}
	if schedule.DateKey(*second.ScheduledDate) != "2024-06-14" {
		t.Errorf("2件目は金曜(6/14)になるべき: %v", second.ScheduledDate)
	}
	if p3 := deps.posts.posts["p3"]; schedule.DateKey(*p3.ScheduledDate) != "2024-06-14" {
		t.Errorf("残りの承認待ちも6/14に繰り越されるべき: %v", p3.ScheduledDate)
	}
}

func TestService_Approve_RollbackOnFailure(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	before := make(map[string]*model.PostTheme)
	for id, p := range deps.posts.posts {
		before[id] = p.Clone()
	}
	// p2(承認) → p1(繰り越し) → p3(繰り越し失敗)
	deps.posts.failUpdateAt = 3

	_, err := svc.Approve(context.Background(), userID, "p2")
	assertAPIErrorCode(t, err, model.ErrCodePostUpdateFailed)

	for id, want := range before {
		got := deps.posts.posts[id]
		if got.Status != want.Status {
			t.Errorf("%s: status = %s, want %s", id, got.Status, want.Status)
		}
		switch {
		case want.ScheduledDate == nil && got.ScheduledDate != nil:
			t.Errorf("%s: ScheduledDate = %v, want nil", id, got.ScheduledDate)
		case want.ScheduledDate != nil && (got.ScheduledDate == nil || !got.ScheduledDate.Equal(*want.ScheduledDate)):
			t.Errorf("%s: ScheduledDate = %v, want %v", id, got.ScheduledDate, want.ScheduledDate)
		}
	}

	// 保存済みの2件を逆順に戻す
	wantCalls := []string{"p2", "p1", "p3", "p1", "p2"}
	if len(deps.posts.updateCalls) != len(wantCalls) {
		t.Fatalf("updateCalls = %v, want %v", deps.posts.updateCalls, wantCalls)
	}
	for i := range wantCalls {
		if deps.posts.updateCalls[i] != wantCalls[i] {
			t.Errorf("updateCalls = %v, want %v", deps.posts.updateCalls, wantCalls)
			break
		}
	}
	if deps.metrics.approvals != 0 {
		t.Error("失敗時は承認数を記録しない")
	}
}

func TestService_Approve_FirstWriteFails(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	deps.posts.failUpdateAt = 1

	_, err := svc.Approve(context.Background(), userID, "p2")
	assertAPIErrorCode(t, err, model.ErrCodePostUpdateFailed)
	if len(deps.posts.updateCalls) != 1 {
		t.Errorf("ロールバック対象がない場合は追加の更新をしない: %v", deps.posts.updateCalls)
	}
	if deps.posts.posts["p2"].Status != model.PostStatusPending {
		t.Error("承認対象のステータスが変わってはならない")
	}
}

func TestService_Approve_NotPending(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)
	_, err := svc.Approve(context.Background(), userID, "a1")
	assertAPIErrorCode(t, err, model.ErrCodePostNotPending)
}

func TestService_Approve_OtherUsersPost(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)
	_, err := svc.Approve(context.Background(), otherUID, "p1")
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestService_Approve_UnknownPost(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)
	_, err := svc.Approve(context.Background(), userID, "missing")
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestService_Approve_FallbackWhenNoQuota(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	deps.quotas.quota = schedule.DayQuota{}

	approved, err := svc.Approve(context.Background(), userID, "p1")
	if err != nil {
		t.Fatalf("Approve がエラーを返した: %v", err)
	}
	if schedule.DateKey(*approved.ScheduledDate) != "2024-06-11" {
		t.Errorf("枠がない場合は翌日になるべき: %v", approved.ScheduledDate)
	}
	if deps.metrics.slotFallbacks != 1 {
		t.Errorf("slotFallbacks = %d, want 1", deps.metrics.slotFallbacks)
	}
	if !bytes.Contains(deps.logs.Bytes(), []byte(`"level":"WARN"`)) {
		t.Error("WARNログが出力されていない")
	}
}

// --- NextSlot / WeekStatus ---

func TestService_NextSlot(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)

	slot, err := svc.NextSlot(context.Background(), userID, siteID)
	if err != nil {
		t.Fatalf("NextSlot がエラーを返した: %v", err)
	}
	if schedule.DateKey(slot.Date) != "2024-06-12" || slot.Fallback {
		t.Errorf("slot = %+v", slot)
	}
}

func TestService_NextSlot_OtherUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.NextSlot(context.Background(), otherUID, siteID)
	assertAPIErrorCode(t, err, model.ErrCodeWebsiteNotFound)
}

func TestService_WeekStatus(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)

	fill, err := svc.WeekStatus(context.Background(), userID, siteID, "2024-06-10")
	if err != nil {
		t.Fatalf("WeekStatus がエラーを返した: %v", err)
	}
	if fill.IsFilled {
		t.Error("IsFilled = true, want false")
	}
	if len(fill.MissingSlots) != 2 ||
		schedule.DateKey(fill.MissingSlots[0].Date) != "2024-06-12" ||
		schedule.DateKey(fill.MissingSlots[1].Date) != "2024-06-14" {
		t.Errorf("MissingSlots = %+v", fill.MissingSlots)
	}
}

func TestService_WeekStatus_DefaultsToToday(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)

	fill, err := svc.WeekStatus(context.Background(), userID, siteID, "")
	if err != nil {
		t.Fatalf("WeekStatus がエラーを返した: %v", err)
	}
	if len(fill.MissingSlots) != 2 {
		t.Errorf("MissingSlots = %+v", fill.MissingSlots)
	}
}

func TestService_WeekStatus_InvalidDate(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.WeekStatus(context.Background(), userID, siteID, "06/10/2024")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidDate)
}

// --- Transition / Decline ---

func TestService_Transition(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	updated, err := svc.Transition(context.Background(), userID, "a1", "TextGenerated")
	if err != nil {
		t.Fatalf("Transition がエラーを返した: %v", err)
	}
	if updated.Status != model.PostStatusTextGenerated || deps.posts.posts["a1"].Status != model.PostStatusTextGenerated {
		t.Errorf("status = %s", updated.Status)
	}
}

func TestService_Transition_PendingToApprovedUsesApprove(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	updated, err := svc.Transition(context.Background(), userID, "p1", "approved")
	if err != nil {
		t.Fatalf("Transition がエラーを返した: %v", err)
	}
	if schedule.DateKey(*updated.ScheduledDate) != "2024-06-12" {
		t.Errorf("承認時は次の公開枠が設定されるべき: %v", updated.ScheduledDate)
	}
	if deps.metrics.approvals != 1 {
		t.Errorf("approvals = %d, want 1", deps.metrics.approvals)
	}
}

func TestService_Transition_Invalid(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)

	_, err := svc.Transition(context.Background(), userID, "a1", "pending")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidStatusTransition)

	_, err = svc.Transition(context.Background(), userID, "a1", "archived")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidPost)
}

func TestService_Decline(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	if _, err := svc.Decline(context.Background(), userID, "p1"); err != nil {
		t.Fatalf("Decline がエラーを返した: %v", err)
	}
	if deps.posts.posts["p1"].Status != model.PostStatusDeclined {
		t.Errorf("status = %s, want declined", deps.posts.posts["p1"].Status)
	}

	// 却下済みからは遷移できない
	_, err := svc.Decline(context.Background(), userID, "p1")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidStatusTransition)
}

func TestService_Decline_UpdateFailure(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	deps.posts.failUpdateAt = 1

	_, err := svc.Decline(context.Background(), userID, "p1")
	assertAPIErrorCode(t, err, model.ErrCodePostUpdateFailed)
}

// --- Edit / Delete ---

func TestService_Edit(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	subject := "  New title  "
	updated, err := svc.Edit(context.Background(), userID, "p1", EditInput{
		SubjectMatter: &subject,
		Keywords:      []string{" go ", "Go", "", "cloud"},
		KeywordsSet:   true,
	})
	if err != nil {
		t.Fatalf("Edit がエラーを返した: %v", err)
	}
	if updated.SubjectMatter != "New title" {
		t.Errorf("SubjectMatter = %q", updated.SubjectMatter)
	}
	got := deps.posts.posts["p1"].Keywords
	if strings.Join(got, ",") != "go,Go,cloud" {
		t.Errorf("Keywords = %v, want [go Go cloud]", got)
	}
}

func TestService_Edit_KeepsDuplicateKeywords(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	_, err := svc.Edit(context.Background(), userID, "p1", EditInput{
		Keywords:    []string{" a ", "", "A", "a", "  "},
		KeywordsSet: true,
	})
	if err != nil {
		t.Fatalf("Edit がエラーを返した: %v", err)
	}
	got := deps.posts.posts["p1"].Keywords
	if strings.Join(got, ",") != "a,A,a" {
		t.Errorf("Keywords = %v, want [a A a]", got)
	}
}

func TestService_Edit_EmptySubject(t *testing.T) {
	svc, _ := newTestService(t, ledger()...)
	empty := " "
	_, err := svc.Edit(context.Background(), userID, "p1", EditInput{SubjectMatter: &empty})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidPost)
}

func TestService_Delete(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)

	if err := svc.Delete(context.Background(), userID, "p1"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if _, ok := deps.posts.posts["p1"]; ok {
		t.Error("削除されていない")
	}

	err := svc.Delete(context.Background(), userID, "p1")
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestService_Delete_OtherUser(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	err := svc.Delete(context.Background(), otherUID, "p1")
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
	if _, ok := deps.posts.posts["p1"]; !ok {
		t.Error("他ユーザーのテーマを削除してはならない")
	}
}

// --- GenerateIdeas ---

func TestService_GenerateIdeas(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	deps.gen.ideas = []generator.Idea{
		{Title: "Idea A", Keywords: []string{"a"}},
		{Title: "Idea B"},
	}

	created, err := svc.GenerateIdeas(context.Background(), userID, siteID, 2)
	if err != nil {
		t.Fatalf("GenerateIdeas がエラーを返した: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("len(created) = %d, want 2", len(created))
	}
	for _, p := range created {
		if p.Status != model.PostStatusPending {
			t.Errorf("status = %s, want pending", p.Status)
		}
		if schedule.DateKey(*p.ScheduledDate) != "2024-06-12" {
			t.Errorf("仮の公開日は次の公開枠: %v", p.ScheduledDate)
		}
		if _, ok := deps.posts.posts[p.ID]; !ok {
			t.Errorf("%s が保存されていない", p.ID)
		}
	}

	req := deps.gen.lastReq
	if req.Count != 2 || req.SiteContent != "Title: Shop" || len(req.AvoidTitles) != 4 {
		t.Errorf("IdeaRequest = %+v", req)
	}
}

func TestService_GenerateIdeas_FetchFailureIsLogged(t *testing.T) {
	svc, deps := newTestService(t, ledger()...)
	deps.fetcher.err = errors.New("connection refused")
	deps.gen.ideas = []generator.Idea{{Title: "Idea A"}}

	created, err := svc.GenerateIdeas(context.Background(), userID, siteID, 1)
	if err != nil {
		t.Fatalf("サイト取得失敗でも生成は続ける: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("len(created) = %d, want 1", len(created))
	}
	if deps.gen.lastReq.SiteContent != "" {
		t.Errorf("SiteContent = %q, want empty", deps.gen.lastReq.SiteContent)
	}
	logs := deps.logs.String()
	if !strings.Contains(logs, `"level":"WARN"`) || !strings.Contains(logs, "connection refused") || !strings.Contains(logs, `"website_id":"`+siteID+`"`) {
		t.Errorf("警告ログが出力されていない: %s", logs)
	}
}

func TestService_GenerateIdeas_InvalidCount(t *testing.T) {
	svc, _ := newTestService(t)
	for _, n := range []int{0, 11} {
		_, err := svc.GenerateIdeas(context.Background(), userID, siteID, n)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidIdeaCount)
	}
}

func TestService_GenerateIdeas_GenerationFailure(t *testing.T) {
	svc, deps := newTestService(t)
	deps.gen.err = errors.New("upstream timeout")

	_, err := svc.GenerateIdeas(context.Background(), userID, siteID, 3)
	assertAPIErrorCode(t, err, model.ErrCodeGenerationFailed)
	if deps.metrics.generationFailures != 1 {
		t.Errorf("generationFailures = %d, want 1", deps.metrics.generationFailures)
	}
}

func TestService_GenerateIdeas_EmptyResult(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GenerateIdeas(context.Background(), userID, siteID, 3)
	assertAPIErrorCode(t, err, model.ErrCodeGenerationFailed)
}

func TestService_GenerateIdeas_InsertFailure(t *testing.T) {
	svc, deps := newTestService(t)
	deps.gen.ideas = []generator.Idea{{Title: "Idea"}}
	deps.posts.insertErr = errors.New("db down")

	_, err := svc.GenerateIdeas(context.Background(), userID, siteID, 1)
	if err == nil {
		t.Fatal("保存失敗はエラーを返すべき")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("保存失敗は内部エラーとして返す: %v", err)
	}
}
