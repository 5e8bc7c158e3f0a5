// Package model はドメインモデルを定義する。
package model

import "time"

// PostingDay は曜日ごとの投稿数を表す。
// 同じ曜日のエントリが複数ある場合は合算される。
type PostingDay struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// PostingSchedule はWebsiteの投稿スケジュール設定の1バージョンを表す。
// 設定は削除されず、新しいバージョンの追加によって置き換えられる。
type PostingSchedule struct {
	ID               string
	WebsiteID        string
	PostingDays      []PostingDay
	PostingFrequency int // Σ PostingDays[i].Count と常に一致する
	CreatedAt        time.Time
}
