package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/contentplanner/internal/model"
)

// postThemeColumns はpost_themesテーブルのSELECT対象カラム。
const postThemeColumns = `id, website_id, subject_matter, keywords, status, scheduled_date,
		        created_at, updated_at`

// PostgresPostThemeRepo はPostgreSQLを使用した投稿テーマリポジトリ。
type PostgresPostThemeRepo struct {
	db *sql.DB
}

// NewPostgresPostThemeRepo はPostgresPostThemeRepoを生成する。
func NewPostgresPostThemeRepo(db *sql.DB) *PostgresPostThemeRepo {
	return &PostgresPostThemeRepo{db: db}
}

func scanPostTheme(row rowScanner) (*model.PostTheme, error) {
	p := &model.PostTheme{}
	var keywords []string
	var scheduled sql.NullTime

	if err := row.Scan(
		&p.ID, &p.WebsiteID, &p.SubjectMatter, pq.Array(&keywords), &p.Status, &scheduled,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Keywords = keywords
	if scheduled.Valid {
		t := scheduled.Time
		p.ScheduledDate = &t
	}
	return p, nil
}

// FindByID は指定IDの投稿テーマを取得する。見つからない場合はnilを返す。
func (r *PostgresPostThemeRepo) FindByID(ctx context.Context, id string) (*model.PostTheme, error) {
	p, err := scanPostTheme(r.db.QueryRowContext(ctx,
		`SELECT `+postThemeColumns+`
		 FROM post_themes WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿テーマの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListByWebsite はサイトの投稿テーマを公開日の昇順（未設定は末尾）で返す。
func (r *PostgresPostThemeRepo) ListByWebsite(ctx context.Context, websiteID string) ([]*model.PostTheme, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postThemeColumns+`
		 FROM post_themes WHERE website_id = $1
		 ORDER BY scheduled_date ASC NULLS LAST, created_at ASC`,
		websiteID,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿テーマ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.PostTheme
	for rows.Next() {
		p, err := scanPostTheme(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿テーマの読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿テーマ一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// InsertMany は投稿テーマを先頭から順に1件ずつ作成する。
// 途中で失敗した場合は作成済みの件数とエラーを返す。
func (r *PostgresPostThemeRepo) InsertMany(ctx context.Context, posts []*model.PostTheme) (int, error) {
	inserted := 0
	for _, p := range posts {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO post_themes (id, website_id, subject_matter, keywords, status, scheduled_date,
			                          created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.WebsiteID, p.SubjectMatter, pq.Array(nonNilStrings(p.Keywords)), p.Status,
			nullTime(p.ScheduledDate), p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("投稿テーマの作成に失敗しました（%d件目）: %w", inserted+1, err)
		}
		inserted++
	}
	return inserted, nil
}

// Update は投稿テーマの内容・ステータス・公開日を更新する。
func (r *PostgresPostThemeRepo) Update(ctx context.Context, p *model.PostTheme) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE post_themes SET
		    subject_matter = $2, keywords = $3, status = $4, scheduled_date = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, p.SubjectMatter, pq.Array(nonNilStrings(p.Keywords)), p.Status,
		nullTime(p.ScheduledDate), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿テーマの更新に失敗しました: %w", err)
	}
	return requireAffected(result, "更新")
}

// Delete は指定IDの投稿テーマを削除する。
func (r *PostgresPostThemeRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM post_themes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("投稿テーマの削除に失敗しました: %w", err)
	}
	return requireAffected(result, "削除")
}

// DeleteDeclinedBefore はcutoffより前に更新されたdeclinedの投稿テーマを削除し、
// 削除件数を返す。
func (r *PostgresPostThemeRepo) DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM post_themes WHERE status = $1 AND updated_at < $2`,
		model.PostStatusDeclined, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("却下済み投稿テーマの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return n, nil
}

// nullTime はnilをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ PostThemeRepository = (*PostgresPostThemeRepo)(nil)
