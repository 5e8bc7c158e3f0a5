// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/contentplanner/internal/model"
)

// ErrNotFound は更新・削除の対象行が存在しないことを示す。
var ErrNotFound = errors.New("対象のレコードが見つかりません")

// WebsiteRepository は管理サイトの永続化インターフェース。
type WebsiteRepository interface {
	// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Website, error)

	// ListByUserID はユーザーが所有するサイト一覧を作成日時の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Website, error)

	// ListByPlanningDay は計画曜日が一致するサイト一覧を返す。
	// dayは小文字の曜日名（例: "monday"）。
	ListByPlanningDay(ctx context.Context, day string) ([]*model.Website, error)

	// Create はサイトを作成する。
	Create(ctx context.Context, website *model.Website) error

	// Update はサイト情報を更新する。
	Update(ctx context.Context, website *model.Website) error

	// Delete は指定IDのサイトを削除する。対象が存在しない場合はErrNotFoundを返す。
	// 関連するposting_schedules、post_themesはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository は投稿スケジュール設定の永続化インターフェース。
// 設定はバージョンとして追記され、最新の1件が有効となる。
type ScheduleRepository interface {
	// GetLatest はサイトの最新の設定を返す。設定がない場合はnilを返す。
	GetLatest(ctx context.Context, websiteID string) (*model.PostingSchedule, error)

	// Insert は新しいバージョンの設定を追加する。
	Insert(ctx context.Context, schedule *model.PostingSchedule) error
}

// PostThemeRepository は投稿テーマ（台帳）の永続化インターフェース。
type PostThemeRepository interface {
	// FindByID は指定IDの投稿テーマを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PostTheme, error)

	// ListByWebsite はサイトの投稿テーマを公開日の昇順（未設定は末尾）で返す。
	ListByWebsite(ctx context.Context, websiteID string) ([]*model.PostTheme, error)

	// InsertMany は投稿テーマを先頭から順に1件ずつ作成する。
	// 途中で失敗した場合は作成済みの件数とエラーを返す。
	InsertMany(ctx context.Context, posts []*model.PostTheme) (int, error)

	// Update は投稿テーマの内容・ステータス・公開日を更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, post *model.PostTheme) error

	// Delete は指定IDの投稿テーマを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// DeleteDeclinedBefore はcutoffより前に更新されたdeclinedの投稿テーマを削除し、
	// 削除件数を返す。
	DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
