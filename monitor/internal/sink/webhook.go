package sink

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

	"github.com/cenkalti/backoff/v5"

	"github.com/veillelab/regwatch/monitor/internal/store"
	"github.com/veillelab/regwatch/safeurl"
)

// WebhookConfig configures an outbound webhook sink.
type WebhookConfig struct {
	// URL receives each change as a JSON POST body.
	URL string `json:"url" yaml:"url"`
	// Secret enables HMAC-SHA256 signing: when set, each request
	// carries an X-Signature-256 header over the body.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	// Timeout bounds each delivery attempt. Defaults to 10s.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxTries bounds retries per change. Defaults to 3.
	MaxTries uint `json:"max_tries,omitempty" yaml:"max_tries,omitempty"`

	// Validator guards the target URL. Defaults to safeurl.Validate.
	Validator func(string) error `json:"-" yaml:"-"`
}

// Webhook POSTs each change to a fixed URL, retrying transient
// failures with exponential backoff. 4xx responses are treated as
// permanent and not retried.
type Webhook struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhook validates the target URL and builds the sink.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.Validator == nil {
		cfg.Validator = safeurl.Validate
	}
	if err := cfg.Validator(cfg.URL); err != nil {
		return nil, fmt.Errorf("webhook url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (w *Webhook) Publish(ctx context.Context, change *store.ChangeRecord) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("webhook: marshal change: %w", err)
	}

	attempt := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.cfg.Secret != "" {
			mac := hmac.New(sha256.New, []byte(w.cfg.Secret))
			mac.Write(body)
			req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return struct{}{}, backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
		default:
			return struct{}{}, fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
	}

	_, err = backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(w.cfg.MaxTries))
	if err != nil {
		return fmt.Errorf("webhook: deliver %s: %w", change.ChangeID, err)
	}
	return nil
}

func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
