// Package speech holds the HTTP clients for the synthesis and recognition
// backends.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voice-mcp-lab/internal/logging"
)

var (
	// ErrPermanent marks failures a retry will not fix (4xx, bad payloads).
	ErrPermanent = errors.New("permanent error")
	// ErrTransient marks network errors, 5xx and 429.
	ErrTransient = errors.New("transient error")
	// ErrNoAudio is returned when a streaming backend finished without
	// sending any audio.
	ErrNoAudio = errors.New("no audio data received from Gemini API")
	// ErrEmptyAudio rejects recognition requests with nothing to send.
	ErrEmptyAudio = errors.New("empty audio")
)

const defaultAttempts = 2

// post is one outgoing request. Body is replayed on each attempt.
type post struct {
	URL         string
	Body        []byte
	ContentType string
	AuthToken   string
	Header      map[string]string
}

// PostWithRetries sends p with exponential backoff between attempts. Only
// transport errors and transient statuses are retried. The caller closes
// the returned body.
func PostWithRetries(ctx context.Context, client *http.Client, p post, attempts int, correlationID string) (*http.Response, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(time.Duration(200*(1<<(i-1))) * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(p.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		req.Header.Set("Content-Type", p.ContentType)
		if p.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+p.AuthToken)
		}
		if correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}
		for k, v := range p.Header {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
			logging.Debugw("speech: POST attempt failed", "attempt", i+1, "err", err, "correlation_id", correlationID)
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		err = statusError(resp)
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err
		logging.Debugw("speech: POST returned retryable status", "attempt", i+1, "status", resp.StatusCode, "correlation_id", correlationID)
	}
	return nil, lastErr
}

// statusError drains and closes resp, classifying its status.
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, bytes.TrimSpace(body))
	}
	return fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, bytes.TrimSpace(body))
}
