// Package signaling holds the HTTP clients for the two remote signaling APIs.
// Every request is a single round trip bounded by the configured timeout and
// is never retried here.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Wyydra/callbridge/internal/metrics"
	"github.com/google/uuid"
)

const DefaultTimeout = 10 * time.Second

// ErrProtocol marks a response that does not honour the API contract.
var ErrProtocol = errors.New("protocol violation")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	// Token is sent as a bearer credential when set.
	Token   string
	Timeout time.Duration
	// HTTPClient defaults to a client without its own timeout; Timeout
	// bounds each request through its context instead.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Metrics
}

func newClient(cfg Config) *client {
	c := &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		metrics: cfg.Metrics,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

func (c *client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.ObserveSignaling(op, err, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrProtocol, op, err)
	}
	return nil
}
