package provider

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotFound is returned by Describe for ids outside the catalog.
var ErrNotFound = errors.New("provider not found")

// Modality separates synthesis backends from recognition backends.
type Modality string

const (
	Synthesis   Modality = "synthesis"
	Recognition Modality = "recognition"
)

// Capability is a feature tag advertised by a backend or model.
type Capability string

const (
	CapCustomInstructions Capability = "custom-instructions"
	CapMultiVoice         Capability = "multi-voice"
	CapMultiModel         Capability = "multi-model"
	CapEmotions           Capability = "emotions"
	CapMultiSpeaker       Capability = "multi-speaker"
	CapCloud              Capability = "cloud"
	CapStreaming          Capability = "streaming"
	CapRawPCM             Capability = "raw-pcm"
)

// Backend is the closed set of synthesis and recognition services.
type Backend int

const (
	Unknown Backend = iota
	Kokoro
	OpenAI
	Gemini
	WhisperLocal
	OpenAIWhisper
)

var backendIDs = map[Backend]string{
	Kokoro:        "kokoro",
	OpenAI:        "openai",
	Gemini:        "gemini",
	WhisperLocal:  "whisper-local",
	OpenAIWhisper: "openai-whisper",
}

func (b Backend) String() string {
	if id, ok := backendIDs[b]; ok {
		return id
	}
	return "unknown"
}

// ParseBackend maps an id (or one of the short aliases users type into the
// settings tools) to a Backend.
func ParseBackend(id string) (Backend, bool) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "kokoro":
		return Kokoro, true
	case "openai", "openai-tts":
		return OpenAI, true
	case "gemini":
		return Gemini, true
	case "whisper-local", "local", "whisper", "whisper.cpp":
		return WhisperLocal, true
	case "openai-whisper", "openai-stt":
		return OpenAIWhisper, true
	}
	return Unknown, false
}

// ClientKey selects the preconfigured transport client for a resolved call.
type ClientKey string

const (
	ClientTTSKokoro ClientKey = "tts-kokoro"
	ClientTTSOpenAI ClientKey = "tts-openai"
	ClientTTSGemini ClientKey = "tts-gemini"
	ClientSTTLocal  ClientKey = "stt-local"
	ClientSTTOpenAI ClientKey = "stt-openai"
)

// Descriptor is the static metadata for one backend.
type Descriptor struct {
	Backend      Backend
	Name         string
	Modality     Modality
	Local        bool
	BaseURL      string
	Capabilities []Capability
	Voices       []string
	Models       []string
	DefaultVoice string
	DefaultModel string
	ClientKey    ClientKey
	// InstructionModels lists the models that accept style instructions.
	InstructionModels []string
}

// ID returns the string identity of the descriptor.
func (d Descriptor) ID() string { return d.Backend.String() }

// Has reports whether the backend advertises c.
func (d Descriptor) Has(c Capability) bool { return slices.Contains(d.Capabilities, c) }

// HasVoice reports whether voice is in the catalog. Backends without a voice
// catalog accept nothing.
func (d Descriptor) HasVoice(voice string) bool { return slices.Contains(d.Voices, voice) }

// HasModel reports whether model is one the backend serves.
func (d Descriptor) HasModel(model string) bool { return slices.Contains(d.Models, model) }

// SupportsInstructions reports whether model accepts style instructions.
func (d Descriptor) SupportsInstructions(model string) bool {
	return slices.Contains(d.InstructionModels, model)
}

var geminiVoices = []string{
	"Aoede", "Callisto", "Charon", "Deimos", "Echo", "Europa",
	"Fenrir", "Ganymede", "Hera", "Io", "Kore", "Lunara",
	"Minerva", "Naia", "Nova", "Oberon", "Phobos", "Quorra",
	"Rhea", "Selene", "Titan", "Umbra", "Vega", "Whisper",
	"Xara", "Yuki", "Zephyr", "Astra", "Cypher", "Delta",
}

// catalog is ordered by priority within each modality: local first.
func catalog() []Descriptor {
	return []Descriptor{
		{
			Backend:      Kokoro,
			Name:         "Kokoro TTS",
			Modality:     Synthesis,
			Local:        true,
			BaseURL:      "http://localhost:8880/v1",
			Capabilities: []Capability{CapMultiVoice},
			Voices:       []string{"af_sky", "af_sarah", "am_adam", "af_nicole", "am_michael"},
			Models:       []string{"tts-1"},
			DefaultVoice: "af_sky",
			DefaultModel: "tts-1",
			ClientKey:    ClientTTSKokoro,
		},
		{
			Backend:           OpenAI,
			Name:              "OpenAI TTS",
			Modality:          Synthesis,
			BaseURL:           "https://api.openai.com/v1",
			Capabilities:      []Capability{CapCloud, CapEmotions, CapMultiModel, CapMultiVoice, CapCustomInstructions},
			Voices:            []string{"alloy", "nova", "echo", "fable", "onyx", "shimmer"},
			Models:            []string{"tts-1", "tts-1-hd", "gpt-4o-mini-tts"},
			DefaultVoice:      "alloy",
			DefaultModel:      "tts-1",
			ClientKey:         ClientTTSOpenAI,
			InstructionModels: []string{"gpt-4o-mini-tts"},
		},
		{
			Backend:           Gemini,
			Name:              "Gemini AI Studio TTS",
			Modality:          Synthesis,
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			Capabilities:      []Capability{CapCloud, CapMultiSpeaker, CapEmotions, CapCustomInstructions, CapMultiVoice, CapStreaming, CapRawPCM},
			Voices:            geminiVoices,
			Models:            []string{"gemini-2.5-flash-preview-tts", "gemini-2.5-pro-preview-tts"},
			DefaultVoice:      "Zephyr",
			DefaultModel:      "gemini-2.5-flash-preview-tts",
			ClientKey:         ClientTTSGemini,
			InstructionModels: []string{"gemini-2.5-flash-preview-tts", "gemini-2.5-pro-preview-tts"},
		},
		{
			Backend:      WhisperLocal,
			Name:         "Whisper.cpp",
			Modality:     Recognition,
			Local:        true,
			BaseURL:      "http://localhost:2022/v1",
			Models:       []string{"whisper-1"},
			DefaultModel: "whisper-1",
			ClientKey:    ClientSTTLocal,
		},
		{
			Backend:      OpenAIWhisper,
			Name:         "OpenAI Whisper",
			Modality:     Recognition,
			BaseURL:      "https://api.openai.com/v1",
			Capabilities: []Capability{CapCloud},
			Models:       []string{"whisper-1"},
			DefaultModel: "whisper-1",
			ClientKey:    ClientSTTOpenAI,
		},
	}
}

// Registry is the immutable backend catalog. Build it once at startup.
type Registry struct {
	order []Backend
	byID  map[Backend]Descriptor
}

// Option adjusts a descriptor while the registry is being built.
type Option func(map[Backend]*Descriptor)

// WithBaseURL points a backend at a non-default endpoint, e.g. a Kokoro
// instance on another port. Empty urls are ignored.
func WithBaseURL(b Backend, url string) Option {
	return func(m map[Backend]*Descriptor) {
		if d, ok := m[b]; ok && url != "" {
			d.BaseURL = strings.TrimRight(url, "/")
		}
	}
}

// NewRegistry returns the catalog with opts applied.
func NewRegistry(opts ...Option) *Registry {
	all := catalog()
	tmp := make(map[Backend]*Descriptor, len(all))
	r := &Registry{byID: make(map[Backend]Descriptor, len(all))}
	for i := range all {
		tmp[all[i].Backend] = &all[i]
		r.order = append(r.order, all[i].Backend)
	}
	for _, opt := range opts {
		opt(tmp)
	}
	for b, d := range tmp {
		r.byID[b] = *d
	}
	return r
}

// Describe looks up a backend by id.
func (r *Registry) Describe(id string) (Descriptor, error) {
	b, ok := ParseBackend(id)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return r.Descriptor(b), nil
}

// Descriptor returns the descriptor for a known backend.
func (r *Registry) Descriptor(b Backend) Descriptor {
	return r.byID[b]
}

// ListByModality returns descriptors of modality m in priority order.
func (r *Registry) ListByModality(m Modality) []Descriptor {
	var out []Descriptor
	for _, b := range r.order {
		if d := r.byID[b]; d.Modality == m {
			out = append(out, d)
		}
	}
	return out
}

// All returns every descriptor in priority order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, b := range r.order {
		out = append(out, r.byID[b])
	}
	return out
}

// BackendForVoice infers the synthesis backend that owns voice. Kokoro voice
// ids carry a language/gender prefix; Gemini voices are matched by name; any
// other non-empty voice is assumed to be an OpenAI voice.
func (r *Registry) BackendForVoice(voice string) (Backend, bool) {
	if voice == "" {
		return Unknown, false
	}
	for _, p := range []string{"af_", "am_", "bf_", "bm_"} {
		if strings.HasPrefix(voice, p) {
			return Kokoro, true
		}
	}
	if r.byID[Gemini].HasVoice(voice) {
		return Gemini, true
	}
	return OpenAI, true
}
