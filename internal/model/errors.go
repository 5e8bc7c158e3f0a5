// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, schedule, post, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeWebsiteNotFound         = "WEBSITE_NOT_FOUND"
	ErrCodeInvalidWebsite          = "INVALID_WEBSITE"
	ErrCodeInvalidURL              = "INVALID_URL"
	ErrCodePostNotFound            = "POST_NOT_FOUND"
	ErrCodeInvalidPost             = "INVALID_POST"
	ErrCodePostNotPending          = "POST_NOT_PENDING"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	ErrCodePostUpdateFailed        = "POST_UPDATE_FAILED"
	ErrCodeInvalidPostingDays      = "INVALID_POSTING_DAYS"
	ErrCodeInvalidFrequency        = "INVALID_FREQUENCY"
	ErrCodeInvalidWeekday          = "INVALID_WEEKDAY"
	ErrCodeInvalidDate             = "INVALID_DATE"
	ErrCodeInvalidIdeaCount        = "INVALID_IDEA_COUNT"
	ErrCodeGenerationFailed        = "GENERATION_FAILED"
)

// NewWebsiteNotFoundError はWebsite未検出エラーを生成する。
func NewWebsiteNotFoundError(websiteID string) *APIError {
	return &APIError{
		Code:     ErrCodeWebsiteNotFound,
		Message:  fmt.Sprintf("指定されたWebサイトが見つかりません: %s", websiteID),
		Category: "website",
		Action:   "WebサイトIDを確認してください。",
	}
}

// NewInvalidWebsiteError はWebsite入力値の検証エラーを生成する。
func NewInvalidWebsiteError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebsite,
		Message:  fmt.Sprintf("Webサイトの設定が無効です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewPostNotFoundError は投稿テーマ未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿テーマが見つかりません: %s", postID),
		Category: "post",
		Action:   "投稿テーマIDを確認してください。",
	}
}

// NewInvalidPostError は投稿テーマの入力値の検証エラーを生成する。
func NewInvalidPostError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPost,
		Message:  fmt.Sprintf("投稿テーマの内容が無効です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewPostNotPendingError は承認待ちでない投稿を承認しようとした場合のエラーを生成する。
func NewPostNotPendingError(status PostStatus) *APIError {
	return &APIError{
		Code:     ErrCodePostNotPending,
		Message:  fmt.Sprintf("承認待ちではない投稿テーマは承認できません（現在: %s）。", status),
		Category: "post",
		Action:   "投稿一覧を再読み込みしてください。",
	}
}

// NewInvalidStatusTransitionError は許可されていないステータス遷移のエラーを生成する。
func NewInvalidStatusTransitionError(from, to PostStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusTransition,
		Message:  fmt.Sprintf("ステータスを %s から %s に変更することはできません。", from, to),
		Category: "post",
		Action:   "投稿一覧を再読み込みしてください。",
	}
}

// NewPostUpdateFailedError は投稿ステータスの更新失敗エラーを生成する。
// 画面の状態は操作前に戻されている。
func NewPostUpdateFailedError() *APIError {
	return &APIError{
		Code:     ErrCodePostUpdateFailed,
		Message:  "投稿ステータスの更新に失敗しました。",
		Category: "post",
		Action:   "変更は元に戻されました。しばらく待ってから再度お試しください。",
	}
}

// NewInvalidPostingDaysError は投稿曜日設定の検証エラーを生成する。
func NewInvalidPostingDaysError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPostingDays,
		Message:  fmt.Sprintf("投稿曜日の設定が無効です: %s", reason),
		Category: "validation",
		Action:   "曜日名（monday〜sunday）と0〜10の投稿数を指定してください。",
	}
}

// NewInvalidFrequencyError は投稿頻度の検証エラーを生成する。
func NewInvalidFrequencyError(frequency int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFrequency,
		Message:  fmt.Sprintf("無効な投稿頻度です: 週%d件", frequency),
		Category: "validation",
		Action:   "投稿頻度は週0〜21件の範囲で指定してください。",
	}
}

// NewInvalidWeekdayError は曜日名の検証エラーを生成する。
func NewInvalidWeekdayError(day string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWeekday,
		Message:  fmt.Sprintf("無効な曜日名です: %s", day),
		Category: "validation",
		Action:   "曜日名は monday〜sunday のいずれかを指定してください。",
	}
}

// NewInvalidDateError は日付パラメータの検証エラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", value),
		Category: "validation",
		Action:   "日付は yyyy-MM-dd 形式で指定してください。",
	}
}

// NewInvalidIdeaCountError は生成件数の検証エラーを生成する。
func NewInvalidIdeaCountError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdeaCount,
		Message:  fmt.Sprintf("無効な生成件数です: %d", count),
		Category: "validation",
		Action:   "生成件数は1〜10の範囲で指定してください。",
	}
}

// NewGenerationFailedError はテキスト生成の失敗エラーを生成する。
func NewGenerationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  "投稿アイデアの生成に失敗しました。",
		Category: "generation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
