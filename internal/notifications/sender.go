package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	userAgent             = "achievement-watch/1"
)

// WebhookSender posts payloads to a Discord webhook URL.
type WebhookSender struct {
	httpClient *http.Client
	url        string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewWebhookSender validates webhookURL and creates a rate-limited sender.
func NewWebhookSender(webhookURL string, requestsPerMinute int, logger *slog.Logger) (*WebhookSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}
	if requestsPerMinute < 1 {
		requestsPerMinute = 30
	}

	return &WebhookSender{
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		url:        webhookURL,
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		logger:     logger,
	}, nil
}

// Send implements Sink. Any non-2xx status is returned as *SendError.
func (s *WebhookSender) Send(ctx context.Context, p Payload) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", RedactURL(s.url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Warn("Webhook send failed",
			"url", RedactURL(s.url), "status", resp.StatusCode)
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// RedactURL strips the path and query from a webhook URL. Discord webhook
// paths carry the token.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
