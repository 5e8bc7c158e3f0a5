// Package generator はLLM（OpenAI互換のChat Completions API）を使って投稿アイデアを生成する。
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/hitoshi/contentplanner/internal/security"
)

const (
	// MaxIdeas は1回のリクエストで生成できる最大件数。
	MaxIdeas = 10
	// maxKeywordsPerIdea は1アイデアあたりに保持するキーワード数の上限。
	maxKeywordsPerIdea = 8
	// maxTitleRunes はタイトルの最大文字数。
	maxTitleRunes = 200
	// maxResponseSize はAPIレスポンスとして読み込む最大バイト数。
	maxResponseSize = 1 << 20
)

// IdeaRequest はアイデア生成の入力。
type IdeaRequest struct {
	SiteContent string
	Keywords    []string
	Style       string
	Language    string
	Count       int
	AvoidTitles []string // 既存の投稿テーマ。重複した提案を避けるために渡す
}

// Idea は生成された投稿アイデア。
type Idea struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// IdeaGenerator は投稿アイデアを生成するインターフェース。
type IdeaGenerator interface {
	GenerateIdeas(ctx context.Context, req IdeaRequest) ([]Idea, error)
}

// Config はClientの接続設定。
type Config struct {
	APIURL     string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// StatusError はAPIが2xx以外のステータスを返したことを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM APIがステータス %d を返しました: %s", e.StatusCode, e.Body)
}

// Retryable は再試行で回復する可能性があるステータスかどうかを返す。
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client はOpenAI互換APIによるIdeaGeneratorの実装。
type Client struct {
	httpClient *http.Client
	cfg        Config
	sanitizer  security.TextSanitizer
	logger     *slog.Logger
	executor   failsafe.Executor[[]byte]
}

// コンパイル時にインターフェースの実装を検証する
var _ IdeaGenerator = (*Client)(nil)

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, sanitizer security.TextSanitizer, logger *slog.Logger) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		sanitizer:  sanitizer,
		logger:     logger,
		executor:   failsafe.With(newRetryPolicy(cfg.MaxRetries, time.Second, 10*time.Second)),
	}
}

// newRetryPolicy は通信エラー、429、5xxを再試行するポリシーを生成する。
func newRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) retrypolicy.RetryPolicy[[]byte] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrypolicy.NewBuilder[[]byte]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ []byte, err error) bool {
			return isRetryable(err)
		}).
		Build()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	// 通信エラー
	return true
}

type decodeError struct{ err error }

func (e *decodeError) Error() string {
	return "LLM APIのレスポンスのパースに失敗しました: " + e.err.Error()
}
func (e *decodeError) Unwrap() error { return e.err }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateIdeas はサイトの文脈からreq.Count件の投稿アイデアを生成する。
// 返される件数はreq.Count以下になることがある。1件も得られない場合はエラーを返す。
func (c *Client) GenerateIdeas(ctx context.Context, req IdeaRequest) ([]Idea, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	if req.Count > MaxIdeas {
		req.Count = MaxIdeas
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(req)},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	start := time.Now()
	content, err := c.executor.WithContext(ctx).Get(func() ([]byte, error) {
		return c.complete(ctx, payload)
	})
	if err != nil {
		c.logger.Error("投稿アイデアの生成に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("count", req.Count),
		)
		return nil, err
	}

	ideas, err := parseIdeas(string(content))
	if err != nil {
		return nil, err
	}
	ideas = c.cleanIdeas(ideas, req.Count)
	if len(ideas) == 0 {
		return nil, errors.New("LLMが有効な投稿アイデアを返しませんでした")
	}

	c.logger.Info("投稿アイデアを生成しました",
		slog.Int("requested", req.Count),
		slog.Int("generated", len(ideas)),
		slog.Duration("duration", time.Since(start)),
	)
	return ideas, nil
}

// complete はChat Completions APIを1回呼び出し、最初の選択肢の本文を返す。
func (c *Client) complete(ctx context.Context, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("LLM APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("LLM APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &decodeError{err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &decodeError{err: errors.New("choicesが空です")}
	}
	return []byte(parsed.Choices[0].Message.Content), nil
}

// parseIdeas はモデルの出力からJSON配列を取り出してデコードする。
// ```json のコードフェンスや前後の説明文が付いていても受け付ける。
func parseIdeas(content string) ([]Idea, error) {
	text := strings.TrimSpace(content)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("LLMの出力にJSON配列が含まれていません")
	}

	var ideas []Idea
	if err := json.Unmarshal([]byte(text[start:end+1]), &ideas); err != nil {
		return nil, fmt.Errorf("投稿アイデアのパースに失敗しました: %w", err)
	}
	return ideas, nil
}

// cleanIdeas はタイトルが空のアイデアを除き、キーワードを整えて最大limit件に絞る。
func (c *Client) cleanIdeas(ideas []Idea, limit int) []Idea {
	cleaned := make([]Idea, 0, len(ideas))
	for _, idea := range ideas {
		title := c.sanitizer.Truncate(idea.Title, maxTitleRunes)
		if title == "" {
			continue
		}
		cleaned = append(cleaned, Idea{
			Title:    title,
			Keywords: c.cleanKeywords(idea.Keywords),
		})
		if len(cleaned) == limit {
			break
		}
	}
	return cleaned
}

func (c *Client) cleanKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	result := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = c.sanitizer.PlainText(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, kw)
		if len(result) == maxKeywordsPerIdea {
			break
		}
	}
	return result
}
