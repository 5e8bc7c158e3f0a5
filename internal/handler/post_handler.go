package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/planner"
	"github.com/hitoshi/contentplanner/internal/post"
)

// defaultIdeaCount はリクエストで件数が省略された場合に生成するアイデア数。
const defaultIdeaCount = 5

// PostServiceInterface は投稿テーマハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	List(ctx context.Context, userID, websiteID string) ([]*model.PostTheme, error)
	GenerateIdeas(ctx context.Context, userID, websiteID string, count int) ([]*model.PostTheme, error)
	Approve(ctx context.Context, userID, postID string) (*model.PostTheme, error)
	Decline(ctx context.Context, userID, postID string) (*model.PostTheme, error)
	Transition(ctx context.Context, userID, postID, status string) (*model.PostTheme, error)
	Edit(ctx context.Context, userID, postID string, in post.EditInput) (*model.PostTheme, error)
	Delete(ctx context.Context, userID, postID string) error
}

// PlanRunner はサイト1件のバッチ計画を即時実行するインターフェース。
type PlanRunner interface {
	RunWebsite(ctx context.Context, userID, websiteID string, now time.Time) (*planner.Result, error)
}

// PostHandler は投稿テーマと計画実行のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
	planner PlanRunner
	now     func() time.Time
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, planner PlanRunner) *PostHandler {
	return &PostHandler{service: service, planner: planner, now: time.Now}
}

// postResponse は投稿テーマのAPIレスポンス。
type postResponse struct {
	ID            string     `json:"id"`
	WebsiteID     string     `json:"website_id"`
	SubjectMatter string     `json:"subject_matter"`
	Keywords      []string   `json:"keywords"`
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ideasRequest struct {
	Count *int `json:"count"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type editRequest struct {
	SubjectMatter *string   `json:"subject_matter"`
	Keywords      *[]string `json:"keywords"`
}

func toPostResponse(p *model.PostTheme) postResponse {
	keywords := p.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return postResponse{
		ID:            p.ID,
		WebsiteID:     p.WebsiteID,
		SubjectMatter: p.SubjectMatter,
		Keywords:      keywords,
		Status:        string(p.Status),
		ScheduledDate: p.ScheduledDate,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toPostResponses(posts []*model.PostTheme) []postResponse {
	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	return resp
}

// ListPosts はサイトの投稿テーマ一覧を公開日の昇順で返す。
// GET /api/websites/{id}/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	posts, err := h.service.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

// GenerateIdeas は投稿アイデアを生成し、承認待ちとして保存する。
// POST /api/websites/{id}/posts/ideas
func (h *PostHandler) GenerateIdeas(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	count := defaultIdeaCount
	if r.ContentLength != 0 {
		var req ideasRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Count != nil {
			count = *req.Count
		}
	}

	posts, err := h.service.GenerateIdeas(r.Context(), userID, chi.URLParam(r, "id"), count)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponses(posts))
}

// RunPlan はサイトのバッチ計画を即時実行し、結果を返す。
// 計画の失敗はresultのsuccess/errorで表す。
// POST /api/websites/{id}/plan
func (h *PostHandler) RunPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.planner.RunWebsite(r.Context(), userID, chi.URLParam(r, "id"), h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ApprovePost は承認待ちの投稿テーマを承認する。
// POST /api/posts/{id}/approve
func (h *PostHandler) ApprovePost(w http.ResponseWriter, r *http.Request) {
	h.respondPost(w, r, func(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
		return h.service.Approve(ctx, userID, postID)
	})
}

// DeclinePost は投稿テーマを却下する。
// POST /api/posts/{id}/decline
func (h *PostHandler) DeclinePost(w http.ResponseWriter, r *http.Request) {
	h.respondPost(w, r, func(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
		return h.service.Decline(ctx, userID, postID)
	})
}

// UpdateStatus は投稿テーマのステータスを遷移させる。
// PUT /api/posts/{id}/status
func (h *PostHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondPost(w, r, func(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
		return h.service.Transition(ctx, userID, postID, req.Status)
	})
}

// EditPost は投稿テーマの題材・キーワードを更新する。
// PATCH /api/posts/{id}
func (h *PostHandler) EditPost(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := post.EditInput{SubjectMatter: req.SubjectMatter}
	if req.Keywords != nil {
		in.Keywords = *req.Keywords
		in.KeywordsSet = true
	}
	h.respondPost(w, r, func(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
		return h.service.Edit(ctx, userID, postID, in)
	})
}

// DeletePost は投稿テーマを削除する。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondPost は1件の投稿テーマを返す操作の共通処理。
func (h *PostHandler) respondPost(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, postID string) (*model.PostTheme, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := op(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p))
}
