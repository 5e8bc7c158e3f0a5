package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/contentplanner/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用した投稿スケジュール設定リポジトリ。
// posting_daysはJSONB列に保存する。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// GetLatest はサイトの最新の設定を返す。設定がない場合はnilを返す。
func (r *PostgresScheduleRepo) GetLatest(ctx context.Context, websiteID string) (*model.PostingSchedule, error) {
	s := &model.PostingSchedule{}
	var rawDays []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, website_id, posting_days, posting_frequency, created_at
		 FROM posting_schedules WHERE website_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		websiteID,
	).Scan(&s.ID, &s.WebsiteID, &rawDays, &s.PostingFrequency, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿スケジュールの取得に失敗しました: %w", err)
	}

	if len(rawDays) > 0 {
		if err := json.Unmarshal(rawDays, &s.PostingDays); err != nil {
			return nil, fmt.Errorf("投稿曜日の解析に失敗しました: %w", err)
		}
	}
	return s, nil
}

// Insert は新しいバージョンの設定を追加する。
func (r *PostgresScheduleRepo) Insert(ctx context.Context, s *model.PostingSchedule) error {
	days := s.PostingDays
	if days == nil {
		days = []model.PostingDay{}
	}
	rawDays, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("投稿曜日のシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posting_schedules (id, website_id, posting_days, posting_frequency, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.WebsiteID, rawDays, s.PostingFrequency, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿スケジュールの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
