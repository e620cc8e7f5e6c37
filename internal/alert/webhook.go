// Package alert delivers operator-facing alerts to a configured webhook.
// Alerts are fire-and-forget: a delivery failure is logged, never propagated
// into the pipeline that raised the alert.
package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/config"
)

type Webhook struct {
	url    string
	secret string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhook(cfg config.AlertingConfig, log zerolog.Logger) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    cfg.WebhookURL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (w *Webhook) Alert(ctx context.Context, event string, fields map[string]interface{}) {
	entry := w.log.Warn().Str("event", event)
	for k, v := range fields {
		entry = entry.Interface(k, v)
	}
	entry.Msg("operator alert")

	if w.url == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event":  event,
		"fields": fields,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		w.log.Error().Err(err).Msg("failed to encode alert payload")
		return
	}

	signature, timestamp := sign(w.secret, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.log.Error().Err(err).Msg("failed to build alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OrderPipe-Timestamp", fmt.Sprintf("%d", timestamp))
	req.Header.Set("X-OrderPipe-Signature", signature)

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Error().Err(err).Str("event", event).Msg("alert webhook delivery failed")
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.log.Error().Int("status", resp.StatusCode).Str("event", event).Msg("alert webhook rejected")
	}
}

func sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	toSign := fmt.Sprintf("%d.%s", timestamp, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("v1=%s", sig), timestamp
}

// Verify lets alert receivers authenticate a webhook body.
func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	toSign := fmt.Sprintf("%d.%s", timestamp, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	expected := fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))

	return hmac.Equal([]byte(expected), []byte(signature))
}
