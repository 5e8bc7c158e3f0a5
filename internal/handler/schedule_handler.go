package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/post"
	"github.com/hitoshi/contentplanner/internal/posting"
	"github.com/hitoshi/contentplanner/internal/schedule"
)

// ScheduleServiceInterface は投稿スケジュール設定のサービスインターフェース。
type ScheduleServiceInterface interface {
	Get(ctx context.Context, userID, websiteID string) (*posting.Schedule, error)
	SetPostingDays(ctx context.Context, userID, websiteID string, days []model.PostingDay) (*posting.Schedule, error)
	UpdateFrequency(ctx context.Context, userID, websiteID string, n int) (*posting.Schedule, error)
	ToggleDay(ctx context.Context, userID, websiteID, day string) (*posting.Schedule, error)
}

// SlotServiceInterface は公開枠の照会に必要なサービスインターフェース。
type SlotServiceInterface interface {
	NextSlot(ctx context.Context, userID, websiteID string) (*post.Slot, error)
	WeekStatus(ctx context.Context, userID, websiteID, from string) (*schedule.WeekFill, error)
}

// ScheduleHandler は投稿スケジュールと公開枠のHTTPハンドラー。
type ScheduleHandler struct {
	schedules ScheduleServiceInterface
	slots     SlotServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(schedules ScheduleServiceInterface, slots SlotServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, slots: slots}
}

// scheduleResponse は投稿スケジュール設定のAPIレスポンス。
type scheduleResponse struct {
	WebsiteID        string             `json:"website_id"`
	PostingDays      []model.PostingDay `json:"posting_days"`
	PostingFrequency int                `json:"posting_frequency"`
	IsDefault        bool               `json:"is_default"`
	UpdatedAt        *time.Time         `json:"updated_at,omitempty"`
}

type postingDaysRequest struct {
	PostingDays []model.PostingDay `json:"posting_days"`
}

type frequencyRequest struct {
	PostingFrequency *int `json:"posting_frequency"`
}

// slotResponse は次の公開枠のAPIレスポンス。
// fallbackがtrueの場合は28日以内に空き枠がなく、翌日を仮の日付として返している。
type slotResponse struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Fallback bool   `json:"fallback"`
}

type missingSlotResponse struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// weekResponse は7日間の枠の充足状況のAPIレスポンス。
type weekResponse struct {
	IsFilled     bool                  `json:"is_filled"`
	MissingSlots []missingSlotResponse `json:"missing_slots"`
}

func toScheduleResponse(s *posting.Schedule) scheduleResponse {
	days := s.PostingDays
	if days == nil {
		days = []model.PostingDay{}
	}
	return scheduleResponse{
		WebsiteID:        s.WebsiteID,
		PostingDays:      days,
		PostingFrequency: s.PostingFrequency,
		IsDefault:        s.IsDefault,
		UpdatedAt:        s.UpdatedAt,
	}
}

// GetSchedule は投稿スケジュール設定を返す。未設定の場合は既定値を返す。
// GET /api/websites/{id}/schedule
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.schedules.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// PutPostingDays は投稿曜日を置き換える。
// PUT /api/websites/{id}/schedule
func (h *ScheduleHandler) PutPostingDays(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req postingDaysRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.schedules.SetPostingDays(r.Context(), userID, chi.URLParam(r, "id"), req.PostingDays)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// PutFrequency は週あたりの投稿頻度を更新する。
// PUT /api/websites/{id}/schedule/frequency
func (h *ScheduleHandler) PutFrequency(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req frequencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PostingFrequency == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidFrequency,
			Message:  "posting_frequencyが指定されていません。",
			Category: "validation",
			Action:   "投稿頻度は週0〜21件の範囲で指定してください。",
		})
		return
	}

	s, err := h.schedules.UpdateFrequency(r.Context(), userID, chi.URLParam(r, "id"), *req.PostingFrequency)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// ToggleDay は曜日の投稿を有効・無効に切り替える。
// POST /api/websites/{id}/schedule/days/{day}/toggle
func (h *ScheduleHandler) ToggleDay(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.schedules.ToggleDay(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "day"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}

// GetNextSlot は次の公開枠を返す。
// GET /api/websites/{id}/schedule/next-slot
func (h *ScheduleHandler) GetNextSlot(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	slot, err := h.slots.NextSlot(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponse{
		Date:     schedule.DateKey(slot.Date),
		Weekday:  schedule.WeekdayName(slot.Date.Weekday()),
		Fallback: slot.Fallback,
	})
}

// GetWeekStatus は7日間の枠の充足状況を返す。
// GET /api/websites/{id}/schedule/week?from=yyyy-mm-dd
func (h *ScheduleHandler) GetWeekStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	fill, err := h.slots.WeekStatus(r.Context(), userID, chi.URLParam(r, "id"), r.URL.Query().Get("from"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := weekResponse{IsFilled: fill.IsFilled, MissingSlots: []missingSlotResponse{}}
	for _, m := range fill.MissingSlots {
		resp.MissingSlots = append(resp.MissingSlots, missingSlotResponse{
			Date:    schedule.DateKey(m.Date),
			Weekday: schedule.WeekdayName(m.Date.Weekday()),
			Count:   m.Count,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
