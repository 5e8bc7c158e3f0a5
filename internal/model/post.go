// Package model はドメインモデルを定義する。
package model

import "time"

// PostStatus は投稿テーマのライフサイクル状態を表す。
type PostStatus string

const (
	// PostStatusGeneratingIdea はアイデア生成中の状態。
	PostStatusGeneratingIdea PostStatus = "generatingidea"
	// PostStatusPending は承認待ちの状態。日付はまだ確定していない。
	PostStatusPending PostStatus = "pending"
	// PostStatusApproved は承認済みで公開日が確定した状態。
	PostStatusApproved PostStatus = "approved"
	// PostStatusTextGenerated は本文生成済みの状態。
	PostStatusTextGenerated PostStatus = "textgenerated"
	// PostStatusGenerated は画像等を含めて生成完了した状態。
	PostStatusGenerated PostStatus = "generated"
	// PostStatusPublished は公開済みの状態。
	PostStatusPublished PostStatus = "published"
	// PostStatusDeclined は却下された状態。
	PostStatusDeclined PostStatus = "declined"
)

// Valid は既知のステータスかどうかを返す。
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusGeneratingIdea, PostStatusPending, PostStatusApproved,
		PostStatusTextGenerated, PostStatusGenerated, PostStatusPublished, PostStatusDeclined:
		return true
	}
	return false
}

// Occupies はこのステータスの投稿が公開枠を消費するかどうかを返す。
// pendingとdeclinedは枠を消費しない。
func (s PostStatus) Occupies() bool {
	return s != PostStatusPending && s != PostStatusDeclined
}

// postTransitions は許可されるステータス遷移。
var postTransitions = map[PostStatus][]PostStatus{
	PostStatusGeneratingIdea: {PostStatusPending, PostStatusDeclined},
	PostStatusPending:        {PostStatusApproved, PostStatusDeclined},
	PostStatusApproved:       {PostStatusTextGenerated, PostStatusPublished, PostStatusDeclined},
	PostStatusTextGenerated:  {PostStatusGenerated, PostStatusPublished, PostStatusDeclined},
	PostStatusGenerated:      {PostStatusPublished},
}

// CanTransition はfromからtoへのステータス遷移が許可されているかを返す。
func CanTransition(from, to PostStatus) bool {
	for _, next := range postTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PostTheme は投稿計画の台帳エントリ（投稿テーマ）を表す。
type PostTheme struct {
	ID            string
	WebsiteID     string
	SubjectMatter string
	Keywords      []string
	Status        PostStatus
	ScheduledDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone はPostThemeのディープコピーを返す。
// ロールバック用のスナップショット取得に使用する。
func (p *PostTheme) Clone() *PostTheme {
	c := *p
	if p.Keywords != nil {
		c.Keywords = append([]string(nil), p.Keywords...)
	}
	if p.ScheduledDate != nil {
		d := *p.ScheduledDate
		c.ScheduledDate = &d
	}
	return &c
}

// PostDraft は保存前の投稿テーマを表す。
type PostDraft struct {
	SubjectMatter string
	Keywords      []string
	Status        PostStatus
	ScheduledDate *time.Time
}
