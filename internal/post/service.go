// Package post は投稿テーマ（台帳）の対話的な操作を提供する。
// 承認時の公開日の確定、一括繰り越し、失敗時のロールバックを含む。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/contentplanner/internal/generator"
	"github.com/hitoshi/contentplanner/internal/metrics"
	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/repository"
	"github.com/hitoshi/contentplanner/internal/schedule"
	"github.com/hitoshi/contentplanner/internal/sitecontent"
)

const (
	maxSubjectLength = 200
	maxKeywords      = 20
)

// QuotaProvider はサイトの曜日ごとの投稿枠を返す。
// posting.Serviceが実装する。
type QuotaProvider interface {
	Quota(ctx context.Context, websiteID string) (schedule.DayQuota, error)
}

// Slot は次の公開枠の計算結果。
type Slot struct {
	Date     time.Time
	Fallback bool // 28日以内に空き枠がなく翌日を返した
}

// EditInput は投稿テーマの編集内容。nilのフィールドは変更しない。
type EditInput struct {
	SubjectMatter *string
	Keywords      []string
	KeywordsSet   bool
}

// Service は投稿テーマのサービス層。
type Service struct {
	websiteRepo repository.WebsiteRepository
	postRepo    repository.PostThemeRepository
	quotas      QuotaProvider
	fetcher     sitecontent.ContentFetcher
	generator   generator.IdeaGenerator
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	websiteRepo repository.WebsiteRepository,
	postRepo repository.PostThemeRepository,
	quotas QuotaProvider,
	fetcher sitecontent.ContentFetcher,
	gen generator.IdeaGenerator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		websiteRepo: websiteRepo,
		postRepo:    postRepo,
		quotas:      quotas,
		fetcher:     fetcher,
		generator:   gen,
		metrics:     collector,
		logger:      logger,
		now:         time.Now,
	}
}

// List はサイトの投稿テーマを公開日の昇順で返す。
func (s *Service) List(ctx context.Context, userID, websiteID string) ([]*model.PostTheme, error) {
	if _, err := s.ownedWebsite(ctx, userID, websiteID); err != nil {
		return nil, err
	}
	return s.listPosts(ctx, websiteID)
}

// NextSlot はサイトの次の公開枠を返す。
func (s *Service) NextSlot(ctx context.Context, userID, websiteID string) (*Slot, error) {
	w, err := s.ownedWebsite(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	return s.nextSlot(ctx, w, posts)
}

// WeekStatus はfrom（yyyy-MM-dd、空の場合は今日）から7日間の枠の充足状況を返す。
// 日付はサイトのタイムゾーンで解釈する。
func (s *Service) WeekStatus(ctx context.Context, userID, websiteID, from string) (*schedule.WeekFill, error) {
	w, err := s.ownedWebsite(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}

	loc := w.Location()
	start := s.now().In(loc)
	if from != "" {
		start, err = schedule.ParseDate(from, loc)
		if err != nil {
			return nil, model.NewInvalidDateError(from)
		}
	}

	quota, err := s.quotas.Quota(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	fill := schedule.CheckWeekFilled(quota, posts, start)
	return &fill, nil
}

// Approve は承認待ちの投稿テーマを承認し、次の公開枠を公開日として確定する。
// 同じサイトの他の承認待ちテーマも同じ日付に繰り越す。
// 途中で保存に失敗した場合は保存済みの変更を逆順に元に戻し、POST_UPDATE_FAILEDを返す。
func (s *Service) Approve(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
	target, w, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if target.Status != model.PostStatusPending {
		return nil, model.NewPostNotPendingError(target.Status)
	}

	posts, err := s.listPosts(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	slot, err := s.nextSlot(ctx, w, posts)
	if err != nil {
		return nil, err
	}
	next := slot.Date

	approved := target.Clone()
	approved.Status = model.PostStatusApproved
	approved.ScheduledDate = &next

	changes := []*model.PostTheme{approved}
	originals := []*model.PostTheme{target}
	for _, p := range posts {
		if p.ID == target.ID || p.Status != model.PostStatusPending {
			continue
		}
		moved := p.Clone()
		moved.ScheduledDate = &next
		changes = append(changes, moved)
		originals = append(originals, p)
	}

	if err := s.applyAll(ctx, changes, originals); err != nil {
		s.logger.Error("投稿テーマの承認に失敗しました",
			slog.String("post_id", postID),
			slog.String("website_id", w.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPostUpdateFailedError()
	}

	s.metrics.RecordApproval()
	s.logger.Info("投稿テーマを承認しました",
		slog.String("post_id", postID),
		slog.String("website_id", w.ID),
		slog.String("scheduled_date", schedule.DateKey(next)),
		slog.Int("moved_pending", len(changes)-1),
	)
	return approved, nil
}

// applyAll はchangesを先頭から順に保存する。
// 失敗した場合は保存済みの行をoriginalsの値に逆順で戻す。
func (s *Service) applyAll(ctx context.Context, changes, originals []*model.PostTheme) error {
	for i, c := range changes {
		c.UpdatedAt = s.now()
		if err := s.postRepo.Update(ctx, c); err != nil {
			s.rollback(ctx, originals[:i])
			return fmt.Errorf("投稿テーマ %s の更新に失敗しました: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, originals []*model.PostTheme) {
	for i := len(originals) - 1; i >= 0; i-- {
		if err := s.postRepo.Update(ctx, originals[i]); err != nil {
			s.logger.Error("投稿テーマのロールバックに失敗しました",
				slog.String("post_id", originals[i].ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Decline は投稿テーマを却下する。却下されたテーマは公開枠を消費しない。
func (s *Service) Decline(ctx context.Context, userID, postID string) (*model.PostTheme, error) {
	return s.Transition(ctx, userID, postID, string(model.PostStatusDeclined))
}

// Transition は投稿テーマのステータスを変更する。
// pendingからapprovedへの変更はApproveと同じく公開日を確定する。
func (s *Service) Transition(ctx context.Context, userID, postID, status string) (*model.PostTheme, error) {
	to := model.PostStatus(strings.ToLower(strings.TrimSpace(status)))
	if !to.Valid() {
		return nil, model.NewInvalidPostError(fmt.Sprintf("不明なステータスです: %s", status))
	}

	p, _, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PostStatusPending && to == model.PostStatusApproved {
		return s.Approve(ctx, userID, postID)
	}
	if !model.CanTransition(p.Status, to) {
		return nil, model.NewInvalidStatusTransitionError(p.Status, to)
	}

	updated := p.Clone()
	updated.Status = to
	updated.UpdatedAt = s.now()
	if err := s.postRepo.Update(ctx, updated); err != nil {
		s.logger.Error("投稿テーマのステータス更新に失敗しました",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPostUpdateFailedError()
	}

	s.logger.Info("投稿テーマのステータスを変更しました",
		slog.String("post_id", postID),
		slog.String("from", string(p.Status)),
		slog.String("to", string(to)),
	)
	return updated, nil
}

// Edit は投稿テーマのタイトルとキーワードを変更する。
func (s *Service) Edit(ctx context.Context, userID, postID string, in EditInput) (*model.PostTheme, error) {
	p, _, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	updated := p.Clone()
	if in.SubjectMatter != nil {
		subject := strings.TrimSpace(*in.SubjectMatter)
		if subject == "" {
			return nil, model.NewInvalidPostError("タイトルを入力してください")
		}
		if len([]rune(subject)) > maxSubjectLength {
			return nil, model.NewInvalidPostError(fmt.Sprintf("タイトルは%d文字以内で指定してください", maxSubjectLength))
		}
		updated.SubjectMatter = subject
	}
	if in.KeywordsSet {
		keywords := normalizeKeywords(in.Keywords)
		if len(keywords) > maxKeywords {
			return nil, model.NewInvalidPostError(fmt.Sprintf("キーワードは%d個以内で指定してください", maxKeywords))
		}
		updated.Keywords = keywords
	}

	updated.UpdatedAt = s.now()
	if err := s.postRepo.Update(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewPostNotFoundError(postID)
		}
		return nil, fmt.Errorf("投稿テーマの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// Delete は投稿テーマを削除する。
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	if _, _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewPostNotFoundError(postID)
		}
		return fmt.Errorf("投稿テーマの削除に失敗しました: %w", err)
	}

	s.logger.Info("投稿テーマを削除しました", slog.String("post_id", postID))
	return nil
}

// GenerateIdeas はcount件（1〜10）の投稿アイデアを生成し、承認待ちとして保存する。
// 仮の公開日として次の公開枠を設定する。
func (s *Service) GenerateIdeas(ctx context.Context, userID, websiteID string, count int) ([]*model.PostTheme, error) {
	if count < 1 || count > generator.MaxIdeas {
		return nil, model.NewInvalidIdeaCountError(count)
	}
	w, err := s.ownedWebsite(ctx, userID, websiteID)
	if err != nil {
		return nil, err
	}
	posts, err := s.listPosts(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	content, err := s.fetcher.Fetch(ctx, w)
	if err != nil {
		s.logger.Warn("サイト内容の取得に失敗したため、キーワードのみで生成します",
			slog.String("website_id", websiteID),
			slog.String("error", err.Error()),
		)
	}
	ideas, err := s.generator.GenerateIdeas(ctx, generator.NewIdeaRequest(w, content.Prompt(), posts, count))
	if err != nil || len(ideas) == 0 {
		s.metrics.RecordGenerationFailure()
		if err != nil {
			s.logger.Error("投稿アイデアの生成に失敗しました",
				slog.String("website_id", websiteID),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewGenerationFailedError()
	}

	slot, err := s.nextSlot(ctx, w, posts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	drafts := make([]*model.PostTheme, 0, len(ideas))
	for _, idea := range ideas {
		date := slot.Date
		drafts = append(drafts, &model.PostTheme{
			ID:            uuid.NewString(),
			WebsiteID:     websiteID,
			SubjectMatter: idea.Title,
			Keywords:      idea.Keywords,
			Status:        model.PostStatusPending,
			ScheduledDate: &date,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	inserted, err := s.postRepo.InsertMany(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("投稿アイデアの保存に失敗しました（%d/%d件保存済み）: %w", inserted, len(drafts), err)
	}

	s.logger.Info("投稿アイデアを保存しました",
		slog.String("website_id", websiteID),
		slog.Int("count", inserted),
	)
	return drafts, nil
}

// nextSlot はFindNextSlotを呼び出し、空き枠がない場合は警告を記録する。
func (s *Service) nextSlot(ctx context.Context, w *model.Website, posts []*model.PostTheme) (*Slot, error) {
	quota, err := s.quotas.Quota(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	date, found := schedule.FindNextSlot(quota, posts, s.now().In(w.Location()))
	if !found {
		s.metrics.RecordSlotFallback()
		s.logger.Warn("28日以内に空き枠がないため翌日を公開日にします",
			slog.String("website_id", w.ID),
			slog.String("date", schedule.DateKey(date)),
		)
	}
	return &Slot{Date: date, Fallback: !found}, nil
}

func (s *Service) listPosts(ctx context.Context, websiteID string) ([]*model.PostTheme, error) {
	posts, err := s.postRepo.ListByWebsite(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("投稿テーマの取得に失敗しました: %w", err)
	}
	return posts, nil
}

// ownedWebsite はユーザーが所有するサイトを返す。他ユーザーのサイトは存在しないものとして扱う。
func (s *Service) ownedWebsite(ctx context.Context, userID, websiteID string) (*model.Website, error) {
	w, err := s.websiteRepo.FindByID(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, model.NewWebsiteNotFoundError(websiteID)
	}
	return w, nil
}

// ownedPost はユーザーが所有するサイトの投稿テーマとそのサイトを返す。
func (s *Service) ownedPost(ctx context.Context, userID, postID string) (*model.PostTheme, *model.Website, error) {
	p, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, nil, fmt.Errorf("投稿テーマの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, nil, model.NewPostNotFoundError(postID)
	}
	w, err := s.websiteRepo.FindByID(ctx, p.WebsiteID)
	if err != nil {
		return nil, nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if w == nil || w.UserID != userID {
		return nil, nil, model.NewPostNotFoundError(postID)
	}
	return p, w, nil
}

// normalizeKeywords は前後の空白を除き、空のキーワードを取り除く。重複はそのまま残す。
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
