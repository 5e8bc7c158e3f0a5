package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/contentplanner/internal/model"
)

// websiteColumns はwebsitesテーブルのSELECT対象カラム。
const websiteColumns = `id, user_id, name, url, feed_url, language, writing_style, keywords,
		        planning_day, notification_email, timezone, created_at, updated_at`

// PostgresWebsiteRepo はPostgreSQLを使用したサイトリポジトリ。
type PostgresWebsiteRepo struct {
	db *sql.DB
}

// NewPostgresWebsiteRepo はPostgresWebsiteRepoを生成する。
func NewPostgresWebsiteRepo(db *sql.DB) *PostgresWebsiteRepo {
	return &PostgresWebsiteRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebsite(row rowScanner) (*model.Website, error) {
	w := &model.Website{}
	var feedURL, writingStyle, notificationEmail sql.NullString
	var keywords []string

	if err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.URL, &feedURL, &w.Language, &writingStyle,
		pq.Array(&keywords), &w.PlanningDay, &notificationEmail, &w.Timezone,
		&w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}

	w.FeedURL = nullStringValue(feedURL)
	w.WritingStyle = nullStringValue(writingStyle)
	w.NotificationEmail = nullStringValue(notificationEmail)
	w.Keywords = keywords
	return w, nil
}

// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
func (r *PostgresWebsiteRepo) FindByID(ctx context.Context, id string) (*model.Website, error) {
	w, err := scanWebsite(r.db.QueryRowContext(ctx,
		`SELECT `+websiteColumns+`
		 FROM websites WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	return w, nil
}

// ListByUserID はユーザーが所有するサイト一覧を作成日時の昇順で返す。
func (r *PostgresWebsiteRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Website, error) {
	return r.list(ctx, "ユーザーのサイト一覧",
		`SELECT `+websiteColumns+`
		 FROM websites WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
}

// ListByPlanningDay は計画曜日が一致するサイト一覧を返す。
func (r *PostgresWebsiteRepo) ListByPlanningDay(ctx context.Context, day string) ([]*model.Website, error) {
	return r.list(ctx, "計画対象サイト一覧",
		`SELECT `+websiteColumns+`
		 FROM websites WHERE planning_day = $1
		 ORDER BY created_at ASC`,
		day,
	)
}

func (r *PostgresWebsiteRepo) list(ctx context.Context, what, query string, args ...any) ([]*model.Website, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗しました: %w", what, err)
	}
	defer rows.Close()

	var websites []*model.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("%sの読み取りに失敗しました: %w", what, err)
		}
		websites = append(websites, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%sの走査に失敗しました: %w", what, err)
	}
	return websites, nil
}

// Create はサイトを作成する。
func (r *PostgresWebsiteRepo) Create(ctx context.Context, w *model.Website) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO websites (id, user_id, name, url, feed_url, language, writing_style, keywords,
		                       planning_day, notification_email, timezone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.UserID, w.Name, w.URL, nullString(w.FeedURL), w.Language,
		nullString(w.WritingStyle), pq.Array(nonNilStrings(w.Keywords)), w.PlanningDay,
		nullString(w.NotificationEmail), w.Timezone, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はサイト情報を更新する。
func (r *PostgresWebsiteRepo) Update(ctx context.Context, w *model.Website) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE websites SET
		    name = $2, url = $3, feed_url = $4, language = $5, writing_style = $6,
		    keywords = $7, planning_day = $8, notification_email = $9, timezone = $10,
		    updated_at = $11
		 WHERE id = $1`,
		w.ID, w.Name, w.URL, nullString(w.FeedURL), w.Language, nullString(w.WritingStyle),
		pq.Array(nonNilStrings(w.Keywords)), w.PlanningDay, nullString(w.NotificationEmail), w.Timezone,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サイトの更新に失敗しました: %w", err)
	}
	return requireAffected(result, "更新")
}

// Delete は指定IDのサイトを削除する。
func (r *PostgresWebsiteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM websites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("サイトの削除に失敗しました: %w", err)
	}
	return requireAffected(result, "削除")
}

// requireAffected は影響行数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result, op string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s結果の取得に失敗しました: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// nonNilStrings はnilスライスを空スライスに変換する。
// pq.Arrayはnilを NULL として書き込むため、NOT NULL列の前に通す。
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ WebsiteRepository = (*PostgresWebsiteRepo)(nil)
