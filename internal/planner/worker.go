package planner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/contentplanner/internal/schedule"
)

// DailyRunner は1日分のバッチ計画を実行するインターフェース。
type DailyRunner interface {
	RunForDay(ctx context.Context, now time.Time) ([]Result, error)
}

// Task は日次で実行する付随ジョブ（却下済みテーマの削除など）。
type Task interface {
	Run(ctx context.Context) error
}

// Worker はティッカーでバッチ計画を起動する。
// 同じ暦日（locで判定）の計画はプロセス内で1回だけ実行する。
type Worker struct {
	runner  DailyRunner
	tasks   []Task
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
	mu      sync.Mutex
	lastRun string
}

// NewWorker はWorkerの新しいインスタンスを生成する。
func NewWorker(runner DailyRunner, loc *time.Location, logger *slog.Logger, tasks ...Task) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{
		runner: runner,
		tasks:  tasks,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
}

// Start はinterval間隔でTickを呼び出す。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("計画ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.String("timezone", w.loc.String()),
	)

	// 起動直後に1回実行
	w.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("計画ワーカーを停止しました")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick は今日の計画が未実行であれば実行する。実行した場合はtrueを返す。
// サイト一覧の取得に失敗した場合は未実行のまま残し、次のTickで再試行する。
func (w *Worker) Tick(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	today := schedule.DateKey(now.In(w.loc))
	if w.lastRun == today {
		return false
	}

	if _, err := w.runner.RunForDay(ctx, now); err != nil {
		w.logger.Error("バッチ計画の実行に失敗しました",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return false
	}
	w.lastRun = today

	for _, t := range w.tasks {
		if err := t.Run(ctx); err != nil {
			w.logger.Error("日次ジョブの実行に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}
