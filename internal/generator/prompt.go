package generator

import (
	"fmt"
	"strings"

	"github.com/hitoshi/contentplanner/internal/model"
)

const systemPrompt = `You are a content strategist who plans blog posts for a website.
Answer ONLY with a JSON array. Each element must be an object with the fields
"title" (string, a concrete post title) and "keywords" (array of 3 to 5 short strings).
Do not add explanations.`

// buildUserPrompt はサイトの文脈からユーザープロンプトを組み立てる。
func buildUserPrompt(req IdeaRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Suggest %d new blog post ideas.\n", req.Count)
	if req.Language != "" {
		fmt.Fprintf(&b, "Write the titles in this language: %s\n", req.Language)
	}
	if req.Style != "" {
		fmt.Fprintf(&b, "Writing style: %s\n", req.Style)
	}
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Focus keywords: %s\n", strings.Join(req.Keywords, ", "))
	}
	if len(req.AvoidTitles) > 0 {
		b.WriteString("Do not repeat these existing posts:\n")
		for _, t := range req.AvoidTitles {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if req.SiteContent != "" {
		b.WriteString("\nWebsite content:\n")
		b.WriteString(req.SiteContent)
		b.WriteString("\n")
	}

	return b.String()
}

// maxAvoidTitles はプロンプトに含める既存テーマの最大件数。
const maxAvoidTitles = 30

// NewIdeaRequest はサイト設定と既存の投稿テーマから生成リクエストを組み立てる。
// 却下されたテーマも重複回避の対象に含める。
func NewIdeaRequest(website *model.Website, siteContent string, existing []*model.PostTheme, count int) IdeaRequest {
	avoid := make([]string, 0, maxAvoidTitles)
	for i := len(existing) - 1; i >= 0 && len(avoid) < maxAvoidTitles; i-- {
		if t := strings.TrimSpace(existing[i].SubjectMatter); t != "" {
			avoid = append(avoid, t)
		}
	}
	return IdeaRequest{
		SiteContent: siteContent,
		Keywords:    website.Keywords,
		Style:       website.WritingStyle,
		Language:    website.Language,
		Count:       count,
		AvoidTitles: avoid,
	}
}
