// Package model はドメインモデルを定義する。
package model

import "time"

// Website は投稿計画の対象となる管理サイト（パブリケーションターゲット）を表す。
// 1つのWebsiteは最新の投稿スケジュール設定1件と投稿テーマの台帳を持つ。
type Website struct {
	ID                string
	UserID            string
	Name              string
	URL               string
	FeedURL           string // 任意。未設定の場合はHTMLから検出する
	Language          string
	WritingStyle      string
	Keywords          []string
	PlanningDay       string // バッチ計画を実行する曜日名（例: "monday"）
	NotificationEmail string
	Timezone          string // IANAタイムゾーン名
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const (
	// DefaultLanguage はWebsiteの既定言語。
	DefaultLanguage = "en"
	// DefaultPlanningDay はWebsiteの既定の計画曜日。
	DefaultPlanningDay = "monday"
	// DefaultTimezone はWebsiteの既定タイムゾーン。
	DefaultTimezone = "UTC"
)

// Location はWebsiteのタイムゾーンを返す。
// 未設定または不正な名前の場合はUTCを返す。
func (w *Website) Location() *time.Location {
	if w == nil || w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
