// Package webhook delivers run_settled events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pithecene-io/dossier/adapter"
	"github.com/pithecene-io/dossier/iox"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
)

// Config controls webhook delivery.
type Config struct {
	// URL is the endpoint that receives the POSTed event.
	URL string

	// Headers are added to every request. Content-Type is always
	// application/json and cannot be overridden.
	Headers map[string]string

	// Timeout bounds a single delivery attempt. Defaults to 10s.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first
	// failure. Defaults to 2.
	Retries int
}

// Adapter posts run_settled events as JSON.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ adapter.Adapter = (*Adapter)(nil)

// New validates cfg and returns a webhook adapter.
func New(cfg Config) (*Adapter, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook: unsupported scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaultRetries
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish POSTs the event, retrying with exponential backoff on
// transport errors and non-2xx responses.
func (a *Adapter) Publish(ctx context.Context, event adapter.RunSettledEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	attempts := 1 + a.cfg.Retries
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(500*(1<<uint(i-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if lastErr = a.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("webhook: delivery failed after %d attempts: %w", attempts, lastErr)
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the adapter holds no persistent connections.
func (a *Adapter) Close() error { return nil }
