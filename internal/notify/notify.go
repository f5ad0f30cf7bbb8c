package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Send posts a plain-text message to an ntfy topic URL.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return fmt.Errorf("notify: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	req.Header.Set("Tags", "warning")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Alerter forwards save failures to ntfy. Bursts are limited so a broken
// store does not flood the topic.
type Alerter struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewAlerter allows one alert per interval with a burst of three.
func NewAlerter(endpoint string, interval time.Duration, client *http.Client) *Alerter {
	if interval <= 0 {
		interval = time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Alerter{
		endpoint: endpoint,
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(interval), 3),
		timeout:  10 * time.Second,
	}
}

// SaveFailed reports that the annotations of symbol did not reach storage.
// It returns immediately; delivery happens in the background.
func (a *Alerter) SaveFailed(symbol string, err error) {
	if a == nil || !a.limiter.Allow() {
		return
	}
	msg := fmt.Sprintf("Annotations for %s were not saved: %v. The unsaved record was journaled.", symbol, err)
	go a.deliver("chartdesk: save failed", msg)
}

func (a *Alerter) deliver(title, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := Send(ctx, a.client, a.endpoint, title, msg); err != nil {
		slog.Warn("save failure alert not delivered", "endpoint", a.endpoint, "error", err)
	}
}
