// Package cleanup は却下済み投稿テーマの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超えて更新されていないdeclinedのテーマを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeclinedDeleter は却下済みテーマの一括削除を抽象化するインターフェース。
// repository.PostThemeRepositoryが実装する。
type DeclinedDeleter interface {
	DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した却下済みテーマの自動削除ジョブ。
// 削除対象がない場合もエラーにならないため、何度実行してもよい。
type CleanupJob struct {
	repo          DeclinedDeleter
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 却下済みテーマの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(repo DeclinedDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 30,
	}
}

// Cutoff は削除の基準時刻（現在時刻のRetentionDays日前）を返す。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().AddDate(0, 0, -j.RetentionDays)
}

// Run はupdated_atがCutoffより古いdeclinedのテーマを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.repo.DeleteDeclinedBefore(ctx, j.Cutoff())
	if err != nil {
		j.logger.Error("却下済みテーマのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("却下済みテーマのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("却下済みテーマのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
