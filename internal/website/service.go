// Package website は管理サイト（パブリケーションターゲット）のドメインロジックを提供する。
package website

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
	"github.com/hitoshi/contentplanner/internal/security"
)

const (
	maxNameLength     = 255
	maxKeywords       = 20
	maxKeywordLength  = 100
	maxStyleLength    = 1000
	maxLanguageLength = 16
)

// Input はサイトの作成・更新の入力値。
// 更新時はnilのフィールドを変更しない。
type Input struct {
	Name              *string
	URL               *string
	FeedURL           *string
	Language          *string
	WritingStyle      *string
	Keywords          []string
	KeywordsSet       bool
	PlanningDay       *string
	NotificationEmail *string
	Timezone          *string
}

// Service はサイト管理のサービス層。
type Service struct {
	repo   repository.WebsiteRepository
	guard  security.URLGuard
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.WebsiteRepository, guard security.URLGuard, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		guard:  guard,
		logger: logger,
		now:    time.Now,
	}
}

// List はユーザーが所有するサイト一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Website, error) {
	sites, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("サイト一覧の取得に失敗しました: %w", err)
	}
	return sites, nil
}

// Get はユーザーが所有するサイトを返す。
// 他ユーザーのサイトは存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, websiteID string) (*model.Website, error) {
	w, err := s.repo.FindByID(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, model.NewWebsiteNotFoundError(websiteID)
	}
	return w, nil
}

// Create はサイトを作成する。nameとurlは必須。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Website, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, model.NewInvalidWebsiteError("nameは必須です")
	}
	if in.URL == nil || strings.TrimSpace(*in.URL) == "" {
		return nil, model.NewInvalidURLError("urlは必須です")
	}

	now := s.now()
	w := &model.Website{
		ID:          uuid.NewString(),
		UserID:      userID,
		Language:    model.DefaultLanguage,
		PlanningDay: model.DefaultPlanningDay,
		Timezone:    model.DefaultTimezone,
		Keywords:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.apply(w, in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}

	s.logger.Info("サイトを作成しました",
		slog.String("user_id", userID),
		slog.String("website_id", w.ID),
		slog.String("url", w.URL),
	)
	return w, nil
}

// Update はサイトを部分更新する。
func (s *Service) Update(ctx context.Context, userID, websiteID string, in Input) (*model.Website, error) {
	w, err := s.Get(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(w, in); err != nil {
		return nil, err
	}
	w.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, w); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewWebsiteNotFoundError(websiteID)
		}
		return nil, fmt.Errorf("サイトの更新に失敗しました: %w", err)
	}
	return w, nil
}

// Delete はサイトを削除する。設定と投稿テーマも削除される。
func (s *Service) Delete(ctx context.Context, userID, websiteID string) error {
	if _, err := s.Get(ctx, userID, websiteID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, websiteID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewWebsiteNotFoundError(websiteID)
		}
		return fmt.Errorf("サイトの削除に失敗しました: %w", err)
	}

	s.logger.Info("サイトを削除しました",
		slog.String("user_id", userID),
		slog.String("website_id", websiteID),
	)
	return nil
}

// apply は入力値を検証してwに反映する。
// 検証エラーの場合wの内容は途中まで変更されている可能性がある。
func (s *Service) apply(w *model.Website, in Input) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len([]rune(name)) > maxNameLength {
			return model.NewInvalidWebsiteError(fmt.Sprintf("nameは1〜%d文字で指定してください", maxNameLength))
		}
		w.Name = name
	}

	if in.URL != nil {
		u := strings.TrimSpace(*in.URL)
		if err := s.guard.ValidateURL(u); err != nil {
			return model.NewInvalidURLError(err.Error())
		}
		w.URL = u
	}

	if in.FeedURL != nil {
		u := strings.TrimSpace(*in.FeedURL)
		if u != "" {
			if err := s.guard.ValidateURL(u); err != nil {
				return model.NewInvalidURLError(err.Error())
			}
		}
		w.FeedURL = u
	}

	if in.Language != nil {
		lang := strings.TrimSpace(*in.Language)
		if lang == "" {
			lang = model.DefaultLanguage
		}
		if len(lang) > maxLanguageLength {
			return model.NewInvalidWebsiteError("languageが長すぎます")
		}
		w.Language = lang
	}

	if in.WritingStyle != nil {
		style := strings.TrimSpace(*in.WritingStyle)
		if len([]rune(style)) > maxStyleLength {
			return model.NewInvalidWebsiteError(fmt.Sprintf("writing_styleは%d文字以内で指定してください", maxStyleLength))
		}
		w.WritingStyle = style
	}

	if in.KeywordsSet {
		keywords, err := NormalizeKeywords(in.Keywords)
		if err != nil {
			return err
		}
		w.Keywords = keywords
	}

	if in.PlanningDay != nil {
		day, ok := schedule.ParseWeekday(*in.PlanningDay)
		if !ok {
			return model.NewInvalidWeekdayError(*in.PlanningDay)
		}
		w.PlanningDay = schedule.WeekdayName(day)
	}

	if in.NotificationEmail != nil {
		email := strings.TrimSpace(*in.NotificationEmail)
		if email != "" {
			addr, err := mail.ParseAddress(email)
			if err != nil {
				return model.NewInvalidWebsiteError("notification_emailの形式が不正です")
			}
			email = addr.Address
		}
		w.NotificationEmail = email
	}

	if in.Timezone != nil {
		tz := strings.TrimSpace(*in.Timezone)
		if tz == "" {
			tz = model.DefaultTimezone
		}
		if _, err := time.LoadLocation(tz); err != nil {
			return model.NewInvalidWebsiteError(fmt.Sprintf("不明なタイムゾーンです: %s", tz))
		}
		w.Timezone = tz
	}

	return nil
}

// NormalizeKeywords はキーワードの前後空白を除去し、空要素と重複（大文字小文字を区別しない）を
// 取り除く。順序は最初の出現順を保つ。
func NormalizeKeywords(keywords []string) ([]string, error) {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if len([]rune(k)) > maxKeywordLength {
			return nil, model.NewInvalidWebsiteError(fmt.Sprintf("キーワードは%d文字以内で指定してください", maxKeywordLength))
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	if len(out) > maxKeywords {
		return nil, model.NewInvalidWebsiteError(fmt.Sprintf("キーワードは%d個以内で指定してください", maxKeywords))
	}
	return out, nil
}
