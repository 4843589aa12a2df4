// Package settings owns the persisted user voice preferences: load on first
// use, cache, update through read-modify-persist-reapply, reset.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/voice-mcp-lab/internal/config"
	"github.com/voice-mcp-lab/internal/fileio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/provider"
)

// Feedback modes for the listening/finished cues.
const (
	FeedbackChime = "chime"
	FeedbackVoice = "voice"
	FeedbackBoth  = "both"
	FeedbackNone  = "none"
)

// VoiceSettings is the persisted record. Empty provider, voice and model
// fields mean "auto": the resolver decides.
type VoiceSettings struct {
	TTSProvider        string  `json:"tts_provider" mapstructure:"tts_provider"`
	TTSVoice           string  `json:"tts_voice" mapstructure:"tts_voice"`
	TTSModel           string  `json:"tts_model" mapstructure:"tts_model"`
	STTProvider        string  `json:"stt_provider" mapstructure:"stt_provider"`
	STTModel           string  `json:"stt_model" mapstructure:"stt_model"`
	GeminiModel        string  `json:"gemini_model,omitempty" mapstructure:"gemini_model"`
	GeminiSystemPrompt string  `json:"gemini_system_prompt,omitempty" mapstructure:"gemini_system_prompt"`
	SilenceTimeout     float64 `json:"silence_timeout" mapstructure:"silence_timeout"`
	ListenDuration     float64 `json:"listen_duration" mapstructure:"listen_duration"`
	AudioFeedback      string  `json:"audio_feedback" mapstructure:"audio_feedback"`
	AllowEmotions      bool    `json:"allow_emotions" mapstructure:"allow_emotions"`
	AutoStartKokoro    bool    `json:"auto_start_kokoro" mapstructure:"auto_start_kokoro"`
	PreferLocal        bool    `json:"prefer_local" mapstructure:"prefer_local"`
	LastUpdated        string  `json:"last_updated" mapstructure:"last_updated"`
}

// Defaults returns the record written when no settings file exists.
func Defaults() VoiceSettings {
	return VoiceSettings{
		STTModel:       "whisper-1",
		SilenceTimeout: 2.5,
		ListenDuration: 180,
		AudioFeedback:  FeedbackChime,
		PreferLocal:    true,
	}
}

// Validate checks ranges and enumerations.
func (s VoiceSettings) Validate() error {
	var errs []error
	if s.TTSProvider != "" {
		if b, ok := provider.ParseBackend(s.TTSProvider); !ok || (b != provider.OpenAI && b != provider.Kokoro && b != provider.Gemini) {
			errs = append(errs, fmt.Errorf("invalid tts_provider %q", s.TTSProvider))
		}
	}
	if s.STTProvider != "" {
		if b, ok := provider.ParseBackend(s.STTProvider); !ok || (b != provider.OpenAI && b != provider.OpenAIWhisper && b != provider.WhisperLocal) {
			errs = append(errs, fmt.Errorf("invalid stt_provider %q", s.STTProvider))
		}
	}
	if s.SilenceTimeout < 0.1 || s.SilenceTimeout > 60 {
		errs = append(errs, fmt.Errorf("silence_timeout must be between 0.1 and 60 seconds, got %v", s.SilenceTimeout))
	}
	if s.ListenDuration < 5 || s.ListenDuration > 600 {
		errs = append(errs, fmt.Errorf("listen_duration must be between 5 and 600 seconds, got %v", s.ListenDuration))
	}
	switch s.AudioFeedback {
	case FeedbackChime, FeedbackVoice, FeedbackBoth, FeedbackNone:
	default:
		errs = append(errs, fmt.Errorf("invalid audio_feedback %q", s.AudioFeedback))
	}
	return errors.Join(errs...)
}

// Service is the process-wide settings owner. Reads are cheap and frequent;
// writes are rare operator edits, last writer wins on disk.
type Service struct {
	path string
	base config.Config

	mu     sync.RWMutex
	cached *VoiceSettings
	env    provider.Environment

	now func() time.Time
}

// NewService returns a service persisting to path, applying saved values on
// top of base.
func NewService(path string, base config.Config) *Service {
	return &Service{path: path, base: base, env: environmentFrom(base), now: time.Now}
}

// Path is the settings file location.
func (s *Service) Path() string { return s.path }

// Load returns the cached settings, reading the file on first use. A missing
// file is replaced by defaults which are persisted immediately.
func (s *Service) Load() (VoiceSettings, error) {
	s.mu.RLock()
	if s.cached != nil {
		v := *s.cached
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Service) loadLocked() (VoiceSettings, error) {
	if s.cached != nil {
		return *s.cached, nil
	}
	vs := Defaults()
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		vs.LastUpdated = s.now().UTC().Format(time.RFC3339)
		if err := s.persist(vs); err != nil {
			return VoiceSettings{}, err
		}
		logging.Infow("settings: created default settings", "path", s.path)
	case err != nil:
		return VoiceSettings{}, fmt.Errorf("read settings: %w", err)
	default:
		if err := json.Unmarshal(b, &vs); err != nil {
			// A corrupt file should not take the server down.
			logging.Warnw("settings: could not parse settings file, using defaults", "path", s.path, "err", err)
			vs = Defaults()
		}
	}
	s.cached = &vs
	return vs, nil
}

// Update sets one field by its JSON key. Values are weakly typed so "2.5"
// and 2.5 are both accepted. The record is validated, persisted and
// re-applied before the cache changes.
func (s *Service) Update(key string, value any) error {
	return s.UpdateMany(map[string]any{key: value})
}

// UpdateMany applies several fields atomically.
func (s *Service) UpdateMany(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.loadLocked()
	if err != nil {
		return err
	}
	next := cur
	if err := decode(values, &next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.LastUpdated = s.now().UTC().Format(time.RFC3339)
	if err := s.persist(next); err != nil {
		return err
	}
	s.cached = &next
	s.applyLocked(next)
	return nil
}

// Reset removes the file, drops the cache and reloads defaults.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove settings: %w", err)
	}
	s.cached = nil
	vs, err := s.loadLocked()
	if err != nil {
		return err
	}
	s.applyLocked(vs)
	return nil
}

// Apply recomputes the effective environment from the saved settings.
func (s *Service) Apply() (provider.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.loadLocked()
	if err != nil {
		return provider.Environment{}, err
	}
	s.applyLocked(vs)
	return s.env, nil
}

// Environment is the last applied environment snapshot.
func (s *Service) Environment() provider.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

// Preferences converts the saved record for the resolver.
func (s *Service) Preferences() provider.Preferences {
	vs, err := s.Load()
	if err != nil {
		logging.Warnw("settings: load failed, resolving without preferences", "err", err)
		return provider.Preferences{}
	}
	return vs.Preferences()
}

// Preferences returns the resolver view of vs.
func (vs VoiceSettings) Preferences() provider.Preferences {
	return provider.Preferences{
		TTSProvider:        vs.TTSProvider,
		TTSVoice:           vs.TTSVoice,
		TTSModel:           vs.TTSModel,
		STTProvider:        vs.STTProvider,
		STTModel:           vs.STTModel,
		GeminiModel:        vs.GeminiModel,
		GeminiSystemPrompt: vs.GeminiSystemPrompt,
	}
}

// SilenceSpan is the configured endpointing silence.
func (vs VoiceSettings) SilenceSpan() time.Duration {
	return time.Duration(vs.SilenceTimeout * float64(time.Second))
}

// ListenCeiling is the configured maximum capture duration.
func (vs VoiceSettings) ListenCeiling() time.Duration {
	return time.Duration(vs.ListenDuration * float64(time.Second))
}

func (s *Service) applyLocked(vs VoiceSettings) {
	env := environmentFrom(s.base)
	switch p, _ := provider.ParseBackend(vs.TTSProvider); p {
	case provider.Kokoro:
		env.TTSBaseURL = s.base.KokoroBaseURL
	case provider.OpenAI:
		env.TTSBaseURL = config.DefaultOpenAIBaseURL
	}
	if vs.TTSVoice != "" {
		env.TTSVoice = vs.TTSVoice
	}
	if vs.TTSModel != "" {
		env.TTSModel = vs.TTSModel
	}
	switch p, _ := provider.ParseBackend(vs.STTProvider); p {
	case provider.WhisperLocal:
		env.STTBaseURL = config.DefaultWhisperBaseURL
	case provider.OpenAI, provider.OpenAIWhisper:
		env.STTBaseURL = config.DefaultOpenAIBaseURL
	}
	if vs.STTModel != "" {
		env.STTModel = vs.STTModel
	}
	if vs.GeminiSystemPrompt != "" {
		env.GeminiSystemPrompt = vs.GeminiSystemPrompt
	}
	env.PreferLocal = vs.PreferLocal
	env.AllowEmotions = vs.AllowEmotions
	s.env = env
	logging.Infow("settings: applied", "tts_provider", vs.TTSProvider, "stt_provider", vs.STTProvider, "silence_timeout", vs.SilenceTimeout, "prefer_local", vs.PreferLocal)
}

func (s *Service) persist(vs VoiceSettings) error {
	b, err := json.MarshalIndent(vs, "", "  ")
	if err != nil {
		return err
	}
	if err := fileio.SaveFileAtomic(s.path, b, 0o600); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func environmentFrom(c config.Config) provider.Environment {
	return provider.Environment{
		TTSBaseURL:         c.TTSBaseURL,
		STTBaseURL:         c.STTBaseURL,
		TTSVoice:           c.TTSVoice,
		TTSModel:           c.TTSModel,
		STTModel:           c.STTModel,
		GeminiSystemPrompt: c.GeminiPrompt,
		PreferLocal:        c.PreferLocal,
		AllowEmotions:      c.AllowEmotions,
	}
}

func decode(input map[string]any, out *VoiceSettings) error {
	var meta mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		Metadata:         &meta,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	for _, k := range meta.Keys {
		if normalizeKey(k) == "lastupdated" {
			return errors.New("last_updated is managed by the server")
		}
	}
	return nil
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
