package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voice-mcp-lab/internal/logging"
)

// Request is one synthesis call against a resolved endpoint.
type Request struct {
	Endpoint     string
	Text         string
	Voice        string
	Model        string
	Instructions string
	// Format is the requested container, "wav" when empty.
	Format        string
	CorrelationID string
}

// Audio is synthesized output. Raw output is headerless PCM described by MIME.
type Audio struct {
	Data   []byte
	Format string
	MIME   string
	Raw    bool
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// OpenAISpeech talks to any OpenAI-compatible /audio/speech endpoint, which
// covers OpenAI itself and Kokoro.
type OpenAISpeech struct {
	APIKey   string
	HTTP     *http.Client
	Attempts int
}

type speechPayload struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
	Instructions   string `json:"instructions,omitempty"`
}

func (c *OpenAISpeech) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if req.Endpoint == "" {
		return Audio{}, fmt.Errorf("%w: speech endpoint not configured", ErrPermanent)
	}
	format := req.Format
	if format == "" {
		format = "wav"
	}
	body, err := json.Marshal(speechPayload{
		Model:          req.Model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: format,
		Instructions:   req.Instructions,
	})
	if err != nil {
		return Audio{}, err
	}
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	resp, err := PostWithRetries(ctx, c.HTTP, post{
		URL:         strings.TrimRight(req.Endpoint, "/") + "/audio/speech",
		Body:        body,
		ContentType: "application/json",
		AuthToken:   c.APIKey,
	}, attempts, req.CorrelationID)
	if err != nil {
		logging.Debugw("speech: synthesis failed", "endpoint", req.Endpoint, "err", err, "correlation_id", req.CorrelationID)
		return Audio{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: read speech body: %v", ErrTransient, err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: empty speech response", ErrPermanent)
	}
	return Audio{Data: data, Format: format, MIME: resp.Header.Get("Content-Type")}, nil
}
