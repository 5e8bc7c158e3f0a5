package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewURLGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はループバックへのリクエストがブロックされることをテストする。
// httptestサーバーは127.0.0.1で起動される。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewURLGuard().NewSafeClient(5 * time.Second)

	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestValidateURL(t *testing.T) {
	guard := NewURLGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https公開URL", "https://example.com", false},
		{"http公開URL", "http://blog.example.org/about", false},
		{"パス付き", "https://example.com/feed.xml", false},
		{"空文字", "", true},
		{"空白のみ", "   ", true},
		{"ftpスキーム", "ftp://example.com", true},
		{"javascriptスキーム", "javascript:alert(1)", true},
		{"スキームなし", "example.com", true},
		{"ホストなし", "https://", true},
		{"プライベートIP 10", "http://10.0.0.1/", true},
		{"プライベートIP 172", "http://172.16.0.1/", true},
		{"プライベートIP 192", "http://192.168.1.100/", true},
		{"ループバック", "http://127.0.0.1/", true},
		{"localhost", "http://localhost:8080/", true},
		{"localhostサブドメイン", "http://api.localhost/", true},
		{"内部ドメイン", "http://metadata.google.internal/", true},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"ゼロアドレス", "http://0.0.0.0/", true},
		{"CGNAT", "http://100.64.0.1/", true},
		{"IPv6ループバック", "http://[::1]/", true},
		{"IPv6ユニークローカル", "http://[fd00::1]/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
