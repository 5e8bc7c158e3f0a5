package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
)

// WebsitePlanner は1サイト分のバッチ計画を実行するインターフェース。
type WebsitePlanner interface {
	PlanWebsite(ctx context.Context, website *model.Website, now time.Time) Result
}

// Job は計画曜日が一致するサイトをまとめて計画する。
// サイトごとの失敗は結果に記録し、他のサイトの処理は続行する。
type Job struct {
	websiteRepo   repository.WebsiteRepository
	planner       WebsitePlanner
	logger        *slog.Logger
	maxConcurrent int
	loc           *time.Location
}

// NewJob はJobの新しいインスタンスを生成する。
// maxConcurrentが0以下の場合は5を使用する。locは計画曜日の判定に使うタイムゾーン。
func NewJob(
	websiteRepo repository.WebsiteRepository,
	planner WebsitePlanner,
	logger *slog.Logger,
	maxConcurrent int,
	loc *time.Location,
) *Job {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Job{
		websiteRepo:   websiteRepo,
		planner:       planner,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		loc:           loc,
	}
}

// RunForDay はnowの曜日（locで判定）を計画曜日とするサイトを並列に計画し、
// サイト一覧と同じ順序で結果を返す。
func (j *Job) RunForDay(ctx context.Context, now time.Time) ([]Result, error) {
	start := time.Now()
	day := schedule.WeekdayName(now.In(j.loc).Weekday())

	websites, err := j.websiteRepo.ListByPlanningDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("計画対象サイトの取得に失敗しました: %w", err)
	}
	if len(websites) == 0 {
		j.logger.Info("計画対象のサイトはありません", slog.String("planning_day", day))
		return []Result{}, nil
	}

	j.logger.Info("バッチ計画を開始します",
		slog.String("planning_day", day),
		slog.Int("website_count", len(websites)),
	)

	results := make([]Result, len(websites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.maxConcurrent)
	for i, w := range websites {
		g.Go(func() error {
			results[i] = j.planner.PlanWebsite(gctx, w, now)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	j.logger.Info("バッチ計画が完了しました",
		slog.String("planning_day", day),
		slog.Int("website_count", len(websites)),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return results, nil
}

// RunWebsite はユーザーが所有する1サイトを計画日に関係なく計画する。
func (j *Job) RunWebsite(ctx context.Context, userID, websiteID string, now time.Time) (*Result, error) {
	w, err := j.websiteRepo.FindByID(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, model.NewWebsiteNotFoundError(websiteID)
	}
	result := j.planner.PlanWebsite(ctx, w, now)
	return &result, nil
}
