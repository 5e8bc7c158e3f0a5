// Package schedule は投稿スケジューリングエンジンを提供する。
//
// 曜日ごとの投稿枠（DayQuota）と投稿テーマの台帳から、次に空いている公開日の探索と
// 直近7日間の枠の充足判定を行う。対話的な承認処理とバッチ計画ジョブの両方が
// このパッケージの同じ関数を使用する。
//
// すべての関数は副作用を持たず、現在時刻と投稿一覧を引数で受け取る。
// 日付の比較は引数の時刻が持つタイムゾーン上の暦日（yyyy-MM-dd）で行うため、
// 呼び出し元はWebsiteのタイムゾーンに変換した時刻を渡すこと。
package schedule
