package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/voice-mcp-lab/internal/logging"
)

// Recognizer turns recorded audio into text.
type Recognizer interface {
	Transcribe(ctx context.Context, req Transcription) (string, error)
}

// Transcription is one recognition call. Filename's extension tells the
// backend the container format.
type Transcription struct {
	Endpoint      string
	Model         string
	Audio         []byte
	Filename      string
	CorrelationID string
}

// Transcriber posts audio to an OpenAI-compatible /audio/transcriptions
// endpoint, local whisper servers included.
type Transcriber struct {
	APIKey   string
	HTTP     *http.Client
	Attempts int
}

// Transcribe returns the trimmed transcript. An empty string means no
// speech was recognized.
func (t *Transcriber) Transcribe(ctx context.Context, req Transcription) (string, error) {
	if len(req.Audio) == 0 {
		return "", ErrEmptyAudio
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", req.Model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "text"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	attempts := t.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	resp, err := PostWithRetries(ctx, t.HTTP, post{
		URL:         strings.TrimRight(req.Endpoint, "/") + "/audio/transcriptions",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
		AuthToken:   t.APIKey,
	}, attempts, req.CorrelationID)
	if err != nil {
		logging.Errorw("speech: transcription failed", "endpoint", req.Endpoint, "model", req.Model, "err", err, "correlation_id", req.CorrelationID)
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read transcript: %v", ErrTransient, err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		logging.Warnw("speech: transcription returned empty text", "correlation_id", req.CorrelationID)
	}
	return text, nil
}
