package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/website"
)

// WebsiteServiceInterface はサイトハンドラーが必要とするサービスインターフェース。
type WebsiteServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Website, error)
	Get(ctx context.Context, userID, websiteID string) (*model.Website, error)
	Create(ctx context.Context, userID string, in website.Input) (*model.Website, error)
	Update(ctx context.Context, userID, websiteID string, in website.Input) (*model.Website, error)
	Delete(ctx context.Context, userID, websiteID string) error
}

// WebsiteHandler はサイト管理のHTTPハンドラー。
type WebsiteHandler struct {
	service WebsiteServiceInterface
}

// NewWebsiteHandler はWebsiteHandlerを生成する。
func NewWebsiteHandler(service WebsiteServiceInterface) *WebsiteHandler {
	return &WebsiteHandler{service: service}
}

// websiteResponse はサイト情報のAPIレスポンス。
type websiteResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	URL               string    `json:"url"`
	FeedURL           string    `json:"feed_url,omitempty"`
	Language          string    `json:"language"`
	WritingStyle      string    `json:"writing_style"`
	Keywords          []string  `json:"keywords"`
	PlanningDay       string    `json:"planning_day"`
	NotificationEmail string    `json:"notification_email,omitempty"`
	Timezone          string    `json:"timezone"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// websiteRequest はサイト作成・更新リクエストのボディ。
// 更新時は省略されたフィールドを変更しない。
type websiteRequest struct {
	Name              *string   `json:"name"`
	URL               *string   `json:"url"`
	FeedURL           *string   `json:"feed_url"`
	Language          *string   `json:"language"`
	WritingStyle      *string   `json:"writing_style"`
	Keywords          *[]string `json:"keywords"`
	PlanningDay       *string   `json:"planning_day"`
	NotificationEmail *string   `json:"notification_email"`
	Timezone          *string   `json:"timezone"`
}

func (req websiteRequest) input() website.Input {
	in := website.Input{
		Name:              req.Name,
		URL:               req.URL,
		FeedURL:           req.FeedURL,
		Language:          req.Language,
		WritingStyle:      req.WritingStyle,
		PlanningDay:       req.PlanningDay,
		NotificationEmail: req.NotificationEmail,
		Timezone:          req.Timezone,
	}
	if req.Keywords != nil {
		in.Keywords = *req.Keywords
		in.KeywordsSet = true
	}
	return in
}

func toWebsiteResponse(w *model.Website) websiteResponse {
	keywords := w.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return websiteResponse{
		ID:                w.ID,
		Name:              w.Name,
		URL:               w.URL,
		FeedURL:           w.FeedURL,
		Language:          w.Language,
		WritingStyle:      w.WritingStyle,
		Keywords:          keywords,
		PlanningDay:       w.PlanningDay,
		NotificationEmail: w.NotificationEmail,
		Timezone:          w.Timezone,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

// ListWebsites はユーザーのサイト一覧を返す。
// GET /api/websites
func (h *WebsiteHandler) ListWebsites(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	websites, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]websiteResponse, 0, len(websites))
	for _, site := range websites {
		resp = append(resp, toWebsiteResponse(site))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateWebsite はサイトを登録する。
// POST /api/websites
func (h *WebsiteHandler) CreateWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req websiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.service.Create(r.Context(), userID, req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWebsiteResponse(site))
}

// GetWebsite はサイト情報を返す。
// GET /api/websites/{id}
func (h *WebsiteHandler) GetWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	site, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWebsiteResponse(site))
}

// UpdateWebsite はサイト情報を部分更新する。
// PATCH /api/websites/{id}
func (h *WebsiteHandler) UpdateWebsite(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req websiteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWebsiteResponse(site))
}

// DeleteWebsite はサイトと関連するスケジュール・投稿テーマを削除する。
// DELETE /api/websites/{id}
func (h *WebsiteHandler) DeleteWebsite(w http.ResponseWriter, r *http.Request) {
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
