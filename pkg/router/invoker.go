package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Invoker delivers a trigger payload to one subscriber endpoint. The
// transport is opaque to the router. On success the subscriber's response
// body comes back; a JSON response becomes its stored context.
type Invoker interface {
	Invoke(ctx context.Context, sub Subscription, payload map[string]any) ([]byte, error)
}

// WebhookConfig configures the HTTP invoker.
type WebhookConfig struct {
	// Timeout bounds one invocation end to end. Default: 10s.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *WebhookConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// WebhookInvoker POSTs the payload as JSON to the subscription endpoint.
// Any non-2xx response is a failure.
type WebhookInvoker struct {
	client *http.Client
}

// NewWebhookInvoker creates an HTTP invoker with a bounded per-call timeout.
func NewWebhookInvoker(cfg WebhookConfig) *WebhookInvoker {
	cfg.ApplyDefaults()
	return &WebhookInvoker{
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// maxResponseBytes bounds how much of a subscriber's response is read back
// as its stored context.
const maxResponseBytes = 1 << 20

func (w *WebhookInvoker) Invoke(ctx context.Context, sub Subscription, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", sub.Endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subscriber %s returned status %d", sub.Subscriber, resp.StatusCode)
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", sub.Endpoint, err)
	}
	return out, nil
}
