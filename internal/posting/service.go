// Package posting はサイトごとの投稿スケジュール設定（曜日ごとの投稿枠）を管理する。
package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
)

const (
	// MaxCountPerDay は1曜日あたりに設定できる最大投稿数。
	MaxCountPerDay = 10
	// MaxFrequency は週あたりに設定できる最大投稿頻度。
	MaxFrequency = 21
)

// Schedule はAPIに返す投稿スケジュール設定。
type Schedule struct {
	WebsiteID        string
	PostingDays      []model.PostingDay // 月曜始まりの7曜日
	PostingFrequency int
	IsDefault        bool // 設定が保存されておらず既定値を返している
	UpdatedAt        *time.Time
}

// Quota はScheduleを曜日ごとの投稿枠に変換する。
func (s *Schedule) Quota() schedule.DayQuota {
	quota := make(schedule.DayQuota)
	for _, d := range s.PostingDays {
		if wd, ok := schedule.ParseWeekday(d.Day); ok && d.Count > 0 {
			quota[wd] += d.Count
		}
	}
	return quota
}

// Service は投稿スケジュール設定のサービス層。
// 設定は上書きせず新しいバージョンとして追加する。
type Service struct {
	websiteRepo  repository.WebsiteRepository
	scheduleRepo repository.ScheduleRepository
	logger       *slog.Logger
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	websiteRepo repository.WebsiteRepository,
	scheduleRepo repository.ScheduleRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		websiteRepo:  websiteRepo,
		scheduleRepo: scheduleRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// Get はサイトの投稿スケジュール設定を返す。
// 設定が保存されていない場合は既定値（月・水・金に各1件）を返す。
func (s *Service) Get(ctx context.Context, userID, websiteID string) (*Schedule, error) {
	if err := s.checkOwner(ctx, userID, websiteID); err != nil {
		return nil, err
	}
	return s.load(ctx, websiteID)
}

// Quota はサイトの曜日ごとの投稿枠を返す。所有者の検証は行わない。
func (s *Service) Quota(ctx context.Context, websiteID string) (schedule.DayQuota, error) {
	sch, err := s.load(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	return sch.Quota(), nil
}

// SetPostingDays は投稿曜日を置き換える。同じ曜日のエントリは合算する。
// 一覧にない曜日の枠は0になる。
func (s *Service) SetPostingDays(ctx context.Context, userID, websiteID string, days []model.PostingDay) (*Schedule, error) {
	if err := s.checkOwner(ctx, userID, websiteID); err != nil {
		return nil, err
	}

	quota := make(schedule.DayQuota)
	for _, d := range days {
		wd, ok := schedule.ParseWeekday(d.Day)
		if !ok {
			return nil, model.NewInvalidWeekdayError(d.Day)
		}
		if d.Count < 0 || d.Count > MaxCountPerDay {
			return nil, model.NewInvalidPostingDaysError(
				fmt.Sprintf("%sの投稿数は0〜%dで指定してください", d.Day, MaxCountPerDay))
		}
		quota[wd] += d.Count
		if quota[wd] > MaxCountPerDay {
			return nil, model.NewInvalidPostingDaysError(
				fmt.Sprintf("%sの投稿数の合計が%dを超えています", schedule.WeekdayName(wd), MaxCountPerDay))
		}
	}

	return s.save(ctx, websiteID, quota)
}

// UpdateFrequency は週あたりの投稿頻度nを優先順（月・水・金・火・木・土・日）に割り当てて保存する。
func (s *Service) UpdateFrequency(ctx context.Context, userID, websiteID string, n int) (*Schedule, error) {
	if n < 0 || n > MaxFrequency {
		return nil, model.NewInvalidFrequencyError(n)
	}
	if err := s.checkOwner(ctx, userID, websiteID); err != nil {
		return nil, err
	}
	return s.save(ctx, websiteID, schedule.DistributeFrequency(n))
}

// ToggleDay は曜日の投稿枠が1以上なら0に、0なら1にする。
func (s *Service) ToggleDay(ctx context.Context, userID, websiteID, day string) (*Schedule, error) {
	wd, ok := schedule.ParseWeekday(day)
	if !ok {
		return nil, model.NewInvalidWeekdayError(day)
	}
	if err := s.checkOwner(ctx, userID, websiteID); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	quota := current.Quota()
	if quota[wd] > 0 {
		quota[wd] = 0
	} else {
		quota[wd] = 1
	}
	return s.save(ctx, websiteID, quota)
}

func (s *Service) checkOwner(ctx context.Context, userID, websiteID string) error {
	w, err := s.websiteRepo.FindByID(ctx, websiteID)
	if err != nil {
		return fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return model.NewWebsiteNotFoundError(websiteID)
	}
	return nil
}

func (s *Service) load(ctx context.Context, websiteID string) (*Schedule, error) {
	rec, err := s.scheduleRepo.GetLatest(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("投稿スケジュールの取得に失敗しました: %w", err)
	}
	if rec == nil {
		s.logger.Debug("投稿スケジュールが未設定のため既定値を使用します",
			slog.String("website_id", websiteID),
		)
		quota := schedule.BuildDayCountMap(nil)
		return &Schedule{
			WebsiteID:        websiteID,
			PostingDays:      schedule.ExpandPostingDays(quota),
			PostingFrequency: quota.Total(),
			IsDefault:        true,
		}, nil
	}

	quota := schedule.BuildDayCountMap(rec.PostingDays)
	updatedAt := rec.CreatedAt
	return &Schedule{
		WebsiteID:        websiteID,
		PostingDays:      schedule.ExpandPostingDays(quota),
		PostingFrequency: quota.Total(),
		UpdatedAt:        &updatedAt,
	}, nil
}

func (s *Service) save(ctx context.Context, websiteID string, quota schedule.DayQuota) (*Schedule, error) {
	now := s.now()
	rec := &model.PostingSchedule{
		ID:               uuid.NewString(),
		WebsiteID:        websiteID,
		PostingDays:      schedule.ExpandPostingDays(quota),
		PostingFrequency: quota.Total(),
		CreatedAt:        now,
	}
	if err := s.scheduleRepo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("投稿スケジュールの保存に失敗しました: %w", err)
	}

	s.logger.Info("投稿スケジュールを更新しました",
		slog.String("website_id", websiteID),
		slog.Int("posting_frequency", rec.PostingFrequency),
	)

	return &Schedule{
		WebsiteID:        websiteID,
		PostingDays:      rec.PostingDays,
		PostingFrequency: rec.PostingFrequency,
		UpdatedAt:        &now,
	}, nil
}
