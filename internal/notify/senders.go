package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shohag/orderpipe/internal/config"
)

// Sender delivers one message to one address over a single channel.
type Sender interface {
	Send(ctx context.Context, to, title, content string) error
}

// httpSender posts to a provider's JSON API. Email, SMS and push providers
// all share this shape; only the endpoint and address field differ.
type httpSender struct {
	channel string
	url     string
	apiKey  string
	field   string // JSON key the provider expects the address under
	client  *http.Client
}

func NewEmailSender(cfg config.ProviderConfig, timeout time.Duration) Sender {
	return newHTTPSender("email", cfg, "to", timeout)
}

func NewSMSSender(cfg config.ProviderConfig, timeout time.Duration) Sender {
	return newHTTPSender("sms", cfg, "phone", timeout)
}

func NewPushSender(cfg config.ProviderConfig, timeout time.Duration) Sender {
	return newHTTPSender("push", cfg, "device_token", timeout)
}

func newHTTPSender(channel string, cfg config.ProviderConfig, field string, timeout time.Duration) *httpSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpSender{
		channel: channel,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		field:   field,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *httpSender) Send(ctx context.Context, to, title, content string) error {
	if s.url == "" {
		return fmt.Errorf("%s provider is not configured", s.channel)
	}

	body, err := json.Marshal(map[string]string{
		s.field:   to,
		"title":   title,
		"content": content,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s send failed: %w", s.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s provider returned status %d: %s", s.channel, resp.StatusCode, string(raw))
	}
	return nil
}
