package speech

import (
	"fmt"
	"net/http"
	"time"

	"github.com/voice-mcp-lab/internal/provider"
)

// Clients holds one preconfigured client per ClientKey. It is built once at
// startup and shared read-only.
type Clients struct {
	synth map[provider.ClientKey]Synthesizer
	recog map[provider.ClientKey]Recognizer
}

// ClientOptions carries credentials and the shared HTTP timeout.
type ClientOptions struct {
	OpenAIAPIKey string
	GeminiAPIKey string
	Timeout      time.Duration
}

// NewClients builds the default client set. Local backends get no API key.
func NewClients(opts ClientOptions) *Clients {
	hc := &http.Client{Timeout: opts.Timeout}
	// streaming responses can outlive a whole-request timeout; GeminiSpeech
	// bounds them by idle time instead
	stream := &http.Client{}
	return &Clients{
		synth: map[provider.ClientKey]Synthesizer{
			provider.ClientTTSKokoro: &OpenAISpeech{HTTP: hc},
			provider.ClientTTSOpenAI: &OpenAISpeech{APIKey: opts.OpenAIAPIKey, HTTP: hc},
			provider.ClientTTSGemini: &GeminiSpeech{APIKey: opts.GeminiAPIKey, HTTP: stream},
		},
		recog: map[provider.ClientKey]Recognizer{
			provider.ClientSTTLocal:  &Transcriber{HTTP: hc},
			provider.ClientSTTOpenAI: &Transcriber{APIKey: opts.OpenAIAPIKey, HTTP: hc},
		},
	}
}

// NewClientsFrom builds a set from explicit handles, for tests and callers
// bringing their own transports.
func NewClientsFrom(synth map[provider.ClientKey]Synthesizer, recog map[provider.ClientKey]Recognizer) *Clients {
	return &Clients{synth: synth, recog: recog}
}

// Synthesizer returns the client for key.
func (c *Clients) Synthesizer(key provider.ClientKey) (Synthesizer, error) {
	s, ok := c.synth[key]
	if !ok {
		return nil, fmt.Errorf("%w: no synthesis client %q", ErrPermanent, key)
	}
	return s, nil
}

// Recognizer returns the client for key.
func (c *Clients) Recognizer(key provider.ClientKey) (Recognizer, error) {
	r, ok := c.recog[key]
	if !ok {
		return nil, fmt.Errorf("%w: no recognition client %q", ErrPermanent, key)
	}
	return r, nil
}
