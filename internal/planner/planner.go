// Package planner はサイトごとの週次バッチ計画を実行する。
// 不足している投稿枠を承認待ちテーマの昇格とアイデア生成で埋め、結果をメールで通知する。
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/contentplanner/internal/generator"
	"github.com/hitoshi/contentplanner/internal/metrics"
	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/notify"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
	"github.com/hitoshi/contentplanner/internal/sitecontent"
)

// ErrGenerationFailed はアイデア生成がエラーまたは0件で終わったことを表す。
var ErrGenerationFailed = errors.New("投稿アイデアの生成に失敗しました")

// QuotaProvider はサイトの曜日ごとの投稿枠を返す。
type QuotaProvider interface {
	Quota(ctx context.Context, websiteID string) (schedule.DayQuota, error)
}

// Result は1サイト分のバッチ計画の結果。
type Result struct {
	WebsiteID         string `json:"website_id"`
	Success           bool   `json:"success"`
	PostsGenerated    int    `json:"posts_generated"`
	PostsPromoted     int    `json:"posts_promoted"`
	Error             string `json:"error,omitempty"`
	NotificationError string `json:"notification_error,omitempty"`
}

// Planner は1サイト分のバッチ計画を行う。
type Planner struct {
	postRepo  repository.PostThemeRepository
	quotas    QuotaProvider
	fetcher   sitecontent.ContentFetcher
	generator generator.IdeaGenerator
	notifier  notify.Notifier
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewPlanner はPlannerの新しいインスタンスを生成する。
func NewPlanner(
	postRepo repository.PostThemeRepository,
	quotas QuotaProvider,
	fetcher sitecontent.ContentFetcher,
	gen generator.IdeaGenerator,
	notifier notify.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Planner {
	return &Planner{
		postRepo:  postRepo,
		quotas:    quotas,
		fetcher:   fetcher,
		generator: gen,
		notifier:  notifier,
		metrics:   collector,
		logger:    logger,
	}
}

// PlanWebsite はnowの日（サイトのタイムゾーン）から7日間の不足分を埋める。
//
//  1. 不足数 = 週の投稿頻度 − 7日間の有効な投稿数。0以下なら何もしない
//  2. 期間内の承認待ちテーマを、その日の枠に空きがある限り承認済みに昇格する
//  3. 最新の台帳から空き枠を再計算し、不足数と空き枠数の小さい方だけアイデアを生成する
//  4. 空き枠の早い日から順に承認済みとして保存する
//  5. 作成したテーマを通知する。通知の失敗は結果を失敗にしない
//
// 同じ期間に2回実行しても、2回目は台帳から再計算するため二重に予約しない。
func (p *Planner) PlanWebsite(ctx context.Context, website *model.Website, now time.Time) Result {
	start := time.Now()
	result := p.plan(ctx, website, now)

	p.metrics.RecordPlanningLatency(time.Since(start))
	if result.Success {
		p.metrics.RecordPlanningRun(metrics.ResultSuccess)
	} else {
		p.metrics.RecordPlanningRun(metrics.ResultFailure)
	}
	return result
}

func (p *Planner) plan(ctx context.Context, website *model.Website, now time.Time) Result {
	result := Result{WebsiteID: website.ID}
	from := schedule.StartOfDay(now.In(website.Location()))
	log := p.logger.With(slog.String("website_id", website.ID), slog.String("from", schedule.DateKey(from)))

	fail := func(err error) Result {
		result.Error = err.Error()
		log.Error("バッチ計画に失敗しました", slog.String("error", err.Error()))
		return result
	}

	quota, err := p.quotas.Quota(ctx, website.ID)
	if err != nil {
		return fail(err)
	}
	posts, err := p.postRepo.ListByWebsite(ctx, website.ID)
	if err != nil {
		return fail(fmt.Errorf("投稿テーマの取得に失敗しました: %w", err))
	}

	needed := quota.Total() - schedule.ActiveCount(posts, from, schedule.WeekDays)
	if needed <= 0 {
		log.Info("今週の投稿枠は埋まっています")
		result.Success = true
		return result
	}

	promoted, err := p.promotePending(ctx, quota, posts, from, needed)
	result.PostsPromoted = promoted
	if promoted > 0 {
		p.metrics.RecordPostsPromoted(promoted)
	}
	if err != nil {
		return fail(err)
	}

	// 昇格後の台帳から再計算する
	posts, err = p.postRepo.ListByWebsite(ctx, website.ID)
	if err != nil {
		return fail(fmt.Errorf("投稿テーマの取得に失敗しました: %w", err))
	}
	needed = quota.Total() - schedule.ActiveCount(posts, from, schedule.WeekDays)
	available := schedule.AvailableSlots(quota, posts, from)
	count := min(needed, len(available))
	if count <= 0 {
		log.Info("生成が必要な投稿はありません",
			slog.Int("promoted", promoted),
			slog.Int("available_slots", len(available)),
		)
		result.Success = true
		return result
	}

	content, err := p.fetcher.Fetch(ctx, website)
	if err != nil {
		log.Warn("サイト内容の取得に失敗したため、キーワードのみで生成します", slog.String("error", err.Error()))
	}
	ideas, err := p.generateIdeas(ctx, website, content.Prompt(), posts, count)
	if err != nil {
		p.metrics.RecordGenerationFailure()
		return fail(fmt.Errorf("%w: %v", ErrGenerationFailed, err))
	}

	created := make([]*model.PostTheme, 0, len(ideas))
	ts := time.Now()
	for i, idea := range ideas {
		date := available[i]
		created = append(created, &model.PostTheme{
			ID:            uuid.NewString(),
			WebsiteID:     website.ID,
			SubjectMatter: idea.Title,
			Keywords:      idea.Keywords,
			Status:        model.PostStatusApproved,
			ScheduledDate: &date,
			CreatedAt:     ts,
			UpdatedAt:     ts,
		})
	}

	inserted, err := p.postRepo.InsertMany(ctx, created)
	result.PostsGenerated = inserted
	// 保存できた分は途中で失敗しても通知する
	if inserted > 0 {
		p.metrics.RecordPostsGenerated(inserted)
		p.notify(ctx, website, created[:inserted], &result, log)
	}
	if err != nil {
		return fail(fmt.Errorf("投稿テーマの保存に失敗しました（%d/%d件保存済み）: %w", inserted, len(created), err))
	}
	result.Success = true

	log.Info("バッチ計画が完了しました",
		slog.Int("posts_generated", inserted),
		slog.Int("posts_promoted", promoted),
	)
	return result
}

// generateIdeas はcount件のアイデアをgenerator.MaxIdeas件ずつ要求する。
// 生成済みのタイトルは次の要求で重複回避の対象に含める。
// 要求より少ない件数が返った時点で打ち切り、いずれかの要求が失敗した場合はエラーを返す。
func (p *Planner) generateIdeas(ctx context.Context, website *model.Website, siteContent string, posts []*model.PostTheme, count int) ([]generator.Idea, error) {
	existing := append([]*model.PostTheme(nil), posts...)
	ideas := make([]generator.Idea, 0, count)
	for len(ideas) < count {
		n := min(count-len(ideas), generator.MaxIdeas)
		chunk, err := p.generator.GenerateIdeas(ctx, generator.NewIdeaRequest(website, siteContent, existing, n))
		if err != nil {
			return nil, err
		}
		if len(chunk) > n {
			chunk = chunk[:n]
		}
		ideas = append(ideas, chunk...)
		if len(chunk) < n {
			break
		}
		for _, idea := range chunk {
			existing = append(existing, &model.PostTheme{SubjectMatter: idea.Title})
		}
	}
	if len(ideas) == 0 {
		return nil, errors.New("0件")
	}
	return ideas, nil
}

// notify は作成したテーマを通知する。通知の失敗は結果に記録するだけで計画は失敗にしない。
func (p *Planner) notify(ctx context.Context, website *model.Website, posts []*model.PostTheme, result *Result, log *slog.Logger) {
	if err := p.notifier.SendPlanningSummary(ctx, website, posts); err != nil {
		p.metrics.RecordNotificationFailure()
		result.NotificationError = err.Error()
		log.Error("計画の通知に失敗しました", slog.String("error", err.Error()))
	}
}

// promotePending は期間内の承認待ちテーマを公開日の早い順に承認済みにする。
// その日の枠に空きがないテーマは承認待ちのまま残す。最大limit件。
func (p *Planner) promotePending(ctx context.Context, quota schedule.DayQuota, posts []*model.PostTheme, from time.Time, limit int) (int, error) {
	end := from.AddDate(0, 0, schedule.WeekDays)
	var candidates []*model.PostTheme
	for _, post := range posts {
		if post.Status != model.PostStatusPending || post.ScheduledDate == nil {
			continue
		}
		d := post.ScheduledDate.In(from.Location())
		if d.Before(from) || !d.Before(end) {
			continue
		}
		candidates = append(candidates, post)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ScheduledDate.Before(*candidates[j].ScheduledDate)
	})

	occupancy := schedule.ListOccupancy(posts, from, end.AddDate(0, 0, -1))
	promoted := 0
	for _, post := range candidates {
		if promoted == limit {
			break
		}
		d := post.ScheduledDate.In(from.Location())
		key := schedule.DateKey(d)
		if occupancy[key] >= quota[d.Weekday()] {
			continue
		}

		updated := post.Clone()
		updated.Status = model.PostStatusApproved
		updated.UpdatedAt = time.Now()
		if err := p.postRepo.Update(ctx, updated); err != nil {
			return promoted, fmt.Errorf("承認待ちテーマ %s の昇格に失敗しました: %w", post.ID, err)
		}
		occupancy[key]++
		promoted++
	}
	return promoted, nil
}
