package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voice-mcp-lab/internal/logging"
)

// DefaultGeminiMIME describes Gemini's headerless output when a chunk omits
// its mime type.
const DefaultGeminiMIME = "audio/L16;rate=24000"

// DefaultStreamIdle bounds the wait for the response headers and for each
// event after that.
const DefaultStreamIdle = 30 * time.Second

var errStreamIdle = errors.New("gemini stream idle")

// GeminiSpeech streams speech from generateContent over server-sent events.
// The stream as a whole has no deadline; IdleTimeout (DefaultStreamIdle when
// zero) aborts it once the server stops sending.
type GeminiSpeech struct {
	APIKey      string
	HTTP        *http.Client
	IdleTimeout time.Duration
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature        float64  `json:"temperature"`
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
}

type geminiChunk struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

// Synthesize sends the instructions followed by the text as one user turn and
// concatenates every inline audio segment of the stream. The result is raw
// PCM described by the first segment's mime type.
func (c *GeminiSpeech) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if c.APIKey == "" {
		return Audio{}, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrPermanent)
	}
	text := req.Text
	if req.Instructions != "" {
		text = req.Instructions + " " + req.Text
	}
	var payload geminiRequest
	payload.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}}
	payload.GenerationConfig.Temperature = 1
	payload.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	payload.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = req.Voice
	body, err := json.Marshal(payload)
	if err != nil {
		return Audio{}, err
	}

	idle := c.IdleTimeout
	if idle <= 0 {
		idle = DefaultStreamIdle
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := time.AfterFunc(idle, func() { cancel(errStreamIdle) })
	defer watchdog.Stop()

	u := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		strings.TrimRight(req.Endpoint, "/"), url.PathEscape(req.Model), url.QueryEscape(c.APIKey))
	resp, err := PostWithRetries(ctx, c.HTTP, post{
		URL:         u,
		Body:        body,
		ContentType: "application/json",
		Header:      map[string]string{"Accept": "text/event-stream"},
	}, 1, req.CorrelationID)
	if err != nil {
		if errors.Is(context.Cause(ctx), errStreamIdle) {
			return Audio{}, fmt.Errorf("%w: no response from gemini within %s", ErrTransient, idle)
		}
		return Audio{}, err
	}
	defer resp.Body.Close()

	var pcm bytes.Buffer
	mime := ""
	segments := 0
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		watchdog.Reset(idle)
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[len("data:"):])), &chunk); err != nil {
			logging.Debugw("speech: skipping undecodable gemini event", "err", err, "correlation_id", req.CorrelationID)
			continue
		}
		for _, cand := range chunk.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return Audio{}, fmt.Errorf("%w: decode gemini audio: %v", ErrPermanent, err)
				}
				if mime == "" {
					mime = p.InlineData.MimeType
				}
				pcm.Write(raw)
				segments++
			}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(context.Cause(ctx), errStreamIdle) {
			return Audio{}, fmt.Errorf("%w: gemini stream stalled for %s", ErrTransient, idle)
		}
		return Audio{}, fmt.Errorf("%w: read gemini stream: %v", ErrTransient, err)
	}
	if pcm.Len() == 0 {
		return Audio{}, ErrNoAudio
	}
	if mime == "" {
		mime = DefaultGeminiMIME
	}
	logging.Debugw("speech: gemini stream complete", "segments", segments, "bytes", pcm.Len(), "mime", mime)
	return Audio{Data: pcm.Bytes(), Format: "pcm", MIME: mime, Raw: true}, nil
}
