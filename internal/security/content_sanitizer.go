package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部由来の文字列からHTMLを取り除き、プレーンテキストにする。
// サイト本文をプロンプトに渡す前と、生成されたテーマを保存する前に使用する。
type TextSanitizer interface {
	// PlainText はすべてのタグを除去し、エンティティを復元し、空白を1つにまとめる。
	PlainText(raw string) string

	// Truncate はPlainTextの結果を最大maxRunes文字に切り詰める。
	Truncate(raw string, maxRunes int) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// ポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	p := bluemonday.StrictPolicy()
	// script・styleの中身もテキストとして残さない
	p.SkipElementsContent("script", "style", "noscript", "template")
	return &textSanitizer{policy: p}
}

// PlainText はHTMLをプレーンテキストに変換する。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// Truncate はプレーンテキスト化したうえで文字数を制限する。
func (s *textSanitizer) Truncate(raw string, maxRunes int) string {
	text := s.PlainText(raw)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
