package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/schedule"
)

// Notifier はバッチ計画の結果を通知するインターフェース。
type Notifier interface {
	SendPlanningSummary(ctx context.Context, website *model.Website, posts []*model.PostTheme) error
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif;">
<h2>{{.WebsiteName}}</h2>
<p>{{len .Rows}} new post(s) were scheduled.</p>
<table cellpadding="6" style="border-collapse: collapse;">
<tr><th align="left">Date</th><th align="left">Day</th><th align="left">Title</th><th align="left">Keywords</th></tr>
{{range .Rows}}<tr><td>{{.Date}}</td><td>{{.Weekday}}</td><td>{{.Title}}</td><td>{{.Keywords}}</td></tr>
{{end}}</table>
</body></html>`))

type summaryRow struct {
	Date     string
	Weekday  string
	Title    string
	Keywords string
}

type summaryData struct {
	WebsiteName string
	Rows        []summaryRow
}

// EmailNotifier はメールによるNotifierの実装。
type EmailNotifier struct {
	sender Sender
	logger *slog.Logger
}

// コンパイル時にインターフェースの実装を検証する
var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier はEmailNotifierの新しいインスタンスを生成する。
// senderがnilの場合（SMTP未設定）は何も送信しない。
func NewEmailNotifier(sender Sender, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		sender: sender,
		logger: logger,
	}
}

// SendPlanningSummary は作成された投稿テーマの一覧をサイトの通知先に送信する。
// SMTPまたは通知先が未設定の場合、投稿が0件の場合は何もしない。
func (n *EmailNotifier) SendPlanningSummary(ctx context.Context, website *model.Website, posts []*model.PostTheme) error {
	if n.sender == nil || website.NotificationEmail == "" || len(posts) == 0 {
		n.logger.Debug("通知をスキップしました",
			slog.String("website_id", website.ID),
			slog.Int("posts", len(posts)),
		)
		return nil
	}

	body, err := n.render(website, posts)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[Content Planner] %s: %d new post(s) scheduled", website.Name, len(posts))

	if err := n.sender.SendMail(ctx, website.NotificationEmail, subject, body); err != nil {
		return err
	}

	n.logger.Info("計画の通知メールを送信しました",
		slog.String("website_id", website.ID),
		slog.Int("posts", len(posts)),
	)
	return nil
}

func (n *EmailNotifier) render(website *model.Website, posts []*model.PostTheme) (string, error) {
	loc := website.Location()
	// Caserはゴルーチン間で共有できない
	title := cases.Title(language.English)
	data := summaryData{WebsiteName: website.Name}
	for _, p := range posts {
		row := summaryRow{
			Title:    p.SubjectMatter,
			Keywords: strings.Join(p.Keywords, ", "),
		}
		if p.ScheduledDate != nil {
			d := p.ScheduledDate.In(loc)
			row.Date = schedule.DateKey(d)
			row.Weekday = title.String(schedule.WeekdayName(d.Weekday()))
		}
		data.Rows = append(data.Rows, row)
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("通知メールの生成に失敗しました: %w", err)
	}
	return buf.String(), nil
}
