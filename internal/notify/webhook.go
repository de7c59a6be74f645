package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookConfig configures JSON delivery to an HTTP endpoint
type WebhookConfig struct {
	URL          string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// retryLogger adapts slog to retryablehttp.LeveledLogger
type retryLogger struct {
	logger *slog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

// WebhookNotifier POSTs notifications as JSON, retrying transient failures
type WebhookNotifier struct {
	client *retryablehttp.Client
	url    string
	logger *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier
func NewWebhookNotifier(cfg WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = &retryLogger{logger: logger}

	return &WebhookNotifier{client: client, url: cfg.URL, logger: logger}
}

type webhookPayload struct {
	Notification
	Status string `json:"status"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	if err := w.send(ctx, n); err != nil {
		w.logger.Error("failed to deliver webhook notification",
			"run_id", n.RunID,
			"correlation_id", n.CorrelationID,
			"error", err)
	}
}

func (w *WebhookNotifier) send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{Notification: n, Status: n.Status()})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
