package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 2 * time.Second
)

// Caller posts JSON bodies to a model endpoint. Providers rate-limit
// and flake under load, so transport errors, 429 and 5xx responses are
// retried with doubling backoff before giving up.
type Caller struct {
	http        *http.Client
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewCaller(client *http.Client, logger *slog.Logger) *Caller {
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		http:        client,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// PostJSON sends body to url and returns the raw response. The final
// status code is returned even on failure so callers can log it.
func (c *Caller) PostJSON(ctx context.Context, url string, body any, headers map[string]string) ([]byte, int, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request body: %w", err)
	}

	reqID := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	var (
		raw    []byte
		status int
	)
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		raw, status, err = c.post(ctx, url, bs, headers)

		if err == nil && !retryableStatus(status) {
			break
		}
		if attempt >= c.maxAttempts {
			break
		}
		c.logger.Warn("llm.http.retry",
			"req_id", reqID,
			"attempt", attempt,
			"status", status,
			"error", err,
			"wait_ms", wait.Milliseconds(),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, status, ctx.Err()
		}
		wait *= 2
	}

	c.logger.Info("llm.http.response",
		"req_id", reqID,
		"status", status,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return nil, status, err
	}
	if status/100 != 2 {
		return raw, status, fmt.Errorf("model endpoint returned status %d", status)
	}
	return raw, status, nil
}

func (c *Caller) post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status/100 == 5
}
