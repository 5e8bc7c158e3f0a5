// Package notify はバッチ計画で作成された投稿テーマをメールで通知する。
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender はHTMLメールを1通送信するインターフェース。
type Sender interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig はSMTPサーバーの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string // エンベロープの送信元アドレス
	FromName string // Fromヘッダーの表示名（任意）
}

// SMTPSender はnet/smtpによるSenderの実装。
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPSender はSMTPSenderの新しいインスタンスを生成する。
// ユーザーとパスワードが設定されている場合のみPLAIN認証を使用する。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPSender{cfg: cfg, auth: auth}
}

// SendMail はHTMLメールを送信する。
func (s *SMTPSender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := buildMessage(s.fromHeader(), to, subject, htmlBody)

	if s.auth != nil {
		if err := smtp.SendMail(addr, s.auth, s.cfg.From, []string{to}, msg); err != nil {
			return fmt.Errorf("メールの送信に失敗しました: %w", err)
		}
		return nil
	}

	// 認証なし
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("SMTPサーバーへの接続に失敗しました: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROMに失敗しました: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TOに失敗しました: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATAに失敗しました: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("本文の書き込みに失敗しました: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("本文の送信に失敗しました: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) fromHeader() string {
	if strings.TrimSpace(s.cfg.FromName) == "" {
		return s.cfg.From
	}
	return fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
}

// buildMessage はヘッダーの改行を除去してメッセージを組み立てる。
func buildMessage(from, to, subject, htmlBody string) []byte {
	lines := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}
