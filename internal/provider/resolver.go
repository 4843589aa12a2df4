package provider

import (
	"context"
	"strings"
	"time"

	"github.com/voice-mcp-lab/internal/logging"
)

const (
	// EmotionModel is the only OpenAI model that honours style instructions,
	// and the one the emotion policy gate applies to.
	EmotionModel = "gpt-4o-mini-tts"

	DefaultGeminiPrompt = "Speak naturally and clearly."

	hostedDefaultHost = "openai.com"
	geminiHost        = "generativelanguage.googleapis.com"
)

// Preferences are the saved user choices. Empty strings mean "not chosen".
type Preferences struct {
	TTSProvider        string
	TTSVoice           string
	TTSModel           string
	STTProvider        string
	STTModel           string
	GeminiModel        string
	GeminiSystemPrompt string
}

// Environment is the process-level default configuration, after saved
// settings have been applied on top of the static config.
type Environment struct {
	TTSBaseURL         string
	STTBaseURL         string
	TTSVoice           string
	TTSModel           string
	STTModel           string
	GeminiSystemPrompt string
	PreferLocal        bool
	AllowEmotions      bool
}

// SynthesisRequest carries the per-call overrides. Empty means unset.
type SynthesisRequest struct {
	Provider     string
	Voice        string
	Model        string
	Instructions string
}

// ResolvedConfig is a fully concrete backend selection for one call.
type ResolvedConfig struct {
	Backend      Backend
	Endpoint     string
	Model        string
	Voice        string
	Instructions string
	ClientKey    ClientKey
}

// Availability is the part of Prober the resolver needs.
type Availability interface {
	Probe(ctx context.Context, d Descriptor, timeout time.Duration) bool
}

// Resolver turns partial requests into ResolvedConfigs. Precedence, first
// match wins: explicit override, saved preference, voice inference,
// prefer-local probing, the configured base URL, the hosted default.
type Resolver struct {
	Registry     *Registry
	Prober       Availability
	ProbeTimeout time.Duration
}

// NewResolver wires a resolver over reg and prober.
func NewResolver(reg *Registry, prober Availability, probeTimeout time.Duration) *Resolver {
	return &Resolver{Registry: reg, Prober: prober, ProbeTimeout: probeTimeout}
}

// ResolveSynthesis picks the synthesis backend, voice, model and
// instructions for req.
func (r *Resolver) ResolveSynthesis(ctx context.Context, req SynthesisRequest, prefs Preferences, env Environment) ResolvedConfig {
	backend, source := r.synthesisBackend(ctx, req, prefs, env)
	d := r.Registry.Descriptor(backend)
	logging.Debugw("resolver: synthesis backend selected", "backend", d.ID(), "source", source)

	voice := pickVoice(d, req.Voice, prefs.TTSVoice, env.TTSVoice)
	modelPrefs := prefs.TTSModel
	if backend == Gemini && prefs.GeminiModel != "" {
		modelPrefs = prefs.GeminiModel
	}
	model := pickModel(d, req.Model, modelPrefs, env.TTSModel)

	instructions := req.Instructions
	if backend == Gemini && instructions == "" {
		instructions = firstNonEmpty(prefs.GeminiSystemPrompt, env.GeminiSystemPrompt, DefaultGeminiPrompt)
	}
	instructions = r.gateInstructions(d, model, instructions, req.Provider, env)

	return ResolvedConfig{
		Backend:      backend,
		Endpoint:     endpoint(d, source, env.TTSBaseURL),
		Model:        model,
		Voice:        voice,
		Instructions: instructions,
		ClientKey:    d.ClientKey,
	}
}

// ResolveRecognition picks the recognition backend and model.
func (r *Resolver) ResolveRecognition(ctx context.Context, explicitProvider string, prefs Preferences, env Environment) ResolvedConfig {
	backend, source := r.recognitionBackend(ctx, explicitProvider, prefs, env)
	d := r.Registry.Descriptor(backend)
	logging.Debugw("resolver: recognition backend selected", "backend", d.ID(), "source", source)
	return ResolvedConfig{
		Backend:   backend,
		Endpoint:  endpoint(d, source, env.STTBaseURL),
		Model:     pickModel(d, "", prefs.STTModel, env.STTModel),
		ClientKey: d.ClientKey,
	}
}

func (r *Resolver) synthesisBackend(ctx context.Context, req SynthesisRequest, prefs Preferences, env Environment) (Backend, string) {
	if req.Provider != "" {
		return r.known(req.Provider, Synthesis, OpenAI), "explicit"
	}
	// An explicit voice is a per-call override too, so when it names a
	// catalog it beats the saved provider.
	if b, ok := r.Registry.BackendForVoice(req.Voice); ok && (b != OpenAI || r.Registry.Descriptor(OpenAI).HasVoice(req.Voice)) {
		return b, "explicit-voice"
	}
	if prefs.TTSProvider != "" {
		return r.known(prefs.TTSProvider, Synthesis, OpenAI), "preference"
	}
	if b, ok := r.Registry.BackendForVoice(firstNonEmpty(req.Voice, prefs.TTSVoice)); ok {
		return b, "voice"
	}
	if env.PreferLocal {
		if b, ok := r.firstLocal(ctx, Synthesis); ok {
			logging.Infow("resolver: auto-selected local synthesis backend", "backend", b.String())
			return b, "prefer-local"
		}
	}
	if u := env.TTSBaseURL; u != "" && !strings.Contains(u, hostedDefaultHost) {
		if strings.Contains(u, geminiHost) {
			return Gemini, "base-url"
		}
		return Kokoro, "base-url"
	}
	return OpenAI, "default"
}

func (r *Resolver) recognitionBackend(ctx context.Context, explicit string, prefs Preferences, env Environment) (Backend, string) {
	if explicit != "" {
		return r.known(explicit, Recognition, OpenAIWhisper), "explicit"
	}
	if prefs.STTProvider != "" {
		return r.known(prefs.STTProvider, Recognition, OpenAIWhisper), "preference"
	}
	if env.PreferLocal {
		if b, ok := r.firstLocal(ctx, Recognition); ok {
			logging.Infow("resolver: auto-selected local recognition backend", "backend", b.String())
			return b, "prefer-local"
		}
	}
	if u := env.STTBaseURL; u != "" && !strings.Contains(u, hostedDefaultHost) {
		return WhisperLocal, "base-url"
	}
	return OpenAIWhisper, "default"
}

// endpoint is the configured base URL when that URL chose the backend, and
// the registry address otherwise.
func endpoint(d Descriptor, source, configured string) string {
	if source == "base-url" && configured != "" {
		return strings.TrimRight(configured, "/")
	}
	return d.BaseURL
}

// known parses id, falling back to def when it is unknown or belongs to the
// other modality. An unknown name never fails a turn.
func (r *Resolver) known(id string, m Modality, def Backend) Backend {
	b, ok := ParseBackend(id)
	if ok && m == Recognition && b == OpenAI {
		b = OpenAIWhisper
	}
	if !ok || r.Registry.Descriptor(b).Modality != m {
		logging.Warnw("resolver: unknown provider, using default", "provider", id, "default", def.String())
		return def
	}
	return b
}

func (r *Resolver) firstLocal(ctx context.Context, m Modality) (Backend, bool) {
	for _, d := range r.Registry.ListByModality(m) {
		if !d.Local {
			continue
		}
		if r.Prober != nil && r.Prober.Probe(ctx, d, r.ProbeTimeout) {
			return d.Backend, true
		}
	}
	return Unknown, false
}

// gateInstructions applies the emotion policy and the per-model capability
// check. Dropping is silent from the caller's point of view.
func (r *Resolver) gateInstructions(d Descriptor, model, instructions, requestedProvider string, env Environment) string {
	if instructions == "" {
		return ""
	}
	if model == EmotionModel {
		if !env.AllowEmotions {
			logging.Warnw("resolver: emotional speech requested but emotions are not allowed, dropping instructions", "model", model)
			return ""
		}
		if requestedProvider != "" && d.Backend != OpenAI {
			logging.Infow("resolver: switching to openai for emotional speech support", "requested", requestedProvider)
		}
	}
	if !d.SupportsInstructions(model) {
		logging.Debugw("resolver: model does not support instructions, dropping", "backend", d.ID(), "model", model)
		return ""
	}
	return instructions
}

// pickVoice keeps an explicit voice as given. Saved and environment voices
// are only used when they belong to the backend's catalog.
func pickVoice(d Descriptor, explicit, saved, env string) string {
	if explicit != "" {
		return explicit
	}
	for _, v := range []string{saved, env} {
		if v != "" && d.HasVoice(v) {
			return v
		}
	}
	return d.DefaultVoice
}

func pickModel(d Descriptor, explicit, saved, env string) string {
	if explicit != "" {
		return explicit
	}
	for _, m := range []string{saved, env} {
		if m != "" && d.HasModel(m) {
			return m
		}
	}
	return d.DefaultModel
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
