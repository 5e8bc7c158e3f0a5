// Package sitecontent は投稿アイデア生成に渡す管理サイトの文脈（本文の要約と最近の記事タイトル）を取得する。
package sitecontent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/contentplanner/internal/model"
	"github.com/hitoshi/contentplanner/internal/security"
)

const (
	// MaxTextRunes はプロンプトに渡す本文の最大文字数。
	MaxTextRunes = 4000
	// maxRecentTitles はフィードから取得する最近の記事タイトル数。
	maxRecentTitles = 10
	defaultMaxSize  = 2 << 20
	userAgent       = "ContentPlanner/1.0"
)

// Content は管理サイトから取得した文脈。
type Content struct {
	Title        string
	Description  string
	Text         string
	FeedURL      string
	RecentTitles []string
}

// Prompt は生成リクエストに渡す文字列を組み立てる。
func (c *Content) Prompt() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Title != "" {
		parts = append(parts, "Title: "+c.Title)
	}
	if c.Description != "" {
		parts = append(parts, "Description: "+c.Description)
	}
	if len(c.RecentTitles) > 0 {
		parts = append(parts, "Recent posts: "+strings.Join(c.RecentTitles, " / "))
	}
	if c.Text != "" {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// ContentFetcher は管理サイトの文脈を取得するインターフェース。
type ContentFetcher interface {
	Fetch(ctx context.Context, website *model.Website) (*Content, error)
}

// Fetcher はHTTPでサイトとフィードを取得するContentFetcherの実装。
type Fetcher struct {
	guard     security.URLGuard
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	timeout   time.Duration
	maxSize   int64
}

// コンパイル時にインターフェースの実装を検証する
var _ ContentFetcher = (*Fetcher)(nil)

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	guard security.URLGuard,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
) *Fetcher {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Fetcher{
		guard:     guard,
		sanitizer: sanitizer,
		logger:    logger,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// Fetch はサイトのトップページを取得し、本文とフィードの最近の記事タイトルを返す。
// 取得に失敗した部分は空のまま返し、エラーにはしない。
func (f *Fetcher) Fetch(ctx context.Context, website *model.Website) (*Content, error) {
	content := &Content{FeedURL: website.FeedURL}

	body, err := f.get(ctx, website.URL, "text/html, */*")
	if err != nil {
		f.logger.Warn("サイトの取得に失敗しました",
			slog.String("website_id", website.ID),
			slog.String("url", website.URL),
			slog.String("error", err.Error()),
		)
	} else {
		p := parsePage(body, website.URL)
		content.Title = f.sanitizer.Truncate(p.title, 200)
		content.Description = f.sanitizer.Truncate(p.description, 500)
		content.Text = f.sanitizer.Truncate(p.text, MaxTextRunes)
		if content.FeedURL == "" && len(p.feedLinks) > 0 {
			content.FeedURL = p.feedLinks[0]
		}
	}

	if content.FeedURL != "" {
		titles, err := f.recentTitles(ctx, content.FeedURL)
		if err != nil {
			f.logger.Warn("フィードの取得に失敗しました",
				slog.String("website_id", website.ID),
				slog.String("feed_url", content.FeedURL),
				slog.String("error", err.Error()),
			)
		}
		content.RecentTitles = titles
	}

	return content, nil
}

// recentTitles はフィードを取得し、先頭から最大maxRecentTitles件のタイトルを返す。
func (f *Fetcher) recentTitles(ctx context.Context, feedURL string) ([]string, error) {
	body, err := f.get(ctx, feedURL, "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	titles := make([]string, 0, maxRecentTitles)
	for _, item := range parsed.Items {
		title := f.sanitizer.Truncate(item.Title, 200)
		if title == "" {
			continue
		}
		titles = append(titles, title)
		if len(titles) == maxRecentTitles {
			break
		}
	}
	return titles, nil
}

// get はURLを検証してからGETし、maxSizeまでのボディを返す。
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ステータス %d を受信しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}
	return body, nil
}
