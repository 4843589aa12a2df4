// Package config loads process configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultKokoroBaseURL  = "http://localhost:8880/v1"
	DefaultWhisperBaseURL = "http://localhost:2022/v1"
)

// Config is the static process configuration. Values that users can change
// at runtime live in the settings service instead.
type Config struct {
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	TTSBaseURL       string  `mapstructure:"tts_base_url"`
	STTBaseURL       string  `mapstructure:"stt_base_url"`
	KokoroBaseURL    string  `mapstructure:"kokoro_tts_base_url"`
	TTSVoice         string  `mapstructure:"tts_voice"`
	TTSModel         string  `mapstructure:"tts_model"`
	STTModel         string  `mapstructure:"stt_model"`
	GeminiPrompt     string  `mapstructure:"gemini_system_prompt"`
	PreferLocal      bool    `mapstructure:"voice_mcp_prefer_local"`
	AllowEmotions    bool    `mapstructure:"voice_allow_emotions"`
	AutoStartKokoro  bool    `mapstructure:"voice_mcp_auto_start_kokoro"`
	SilenceTimeout   float64 `mapstructure:"voice_mcp_silence_timeout"`
	SilenceThreshold float64 `mapstructure:"voice_mcp_silence_threshold"`
	SampleRate       int     `mapstructure:"voice_mcp_sample_rate"`
	Channels         int     `mapstructure:"voice_mcp_channels"`
	AudioFeedback    string  `mapstructure:"voice_mcp_audio_feedback"`
	FeedbackVoice    string  `mapstructure:"voice_mcp_feedback_voice"`
	FeedbackStyle    string  `mapstructure:"voice_mcp_feedback_style"`
	UploadFormat     string  `mapstructure:"voice_mcp_upload_format"`

	SaveAudio bool   `mapstructure:"voice_mcp_save_audio"`
	AudioDir  string `mapstructure:"voice_mcp_audio_dir"`
	Debug     bool   `mapstructure:"voice_mcp_debug"`
	DebugDir  string `mapstructure:"voice_mcp_debug_dir"`

	AudioRetentionHours int `mapstructure:"voice_mcp_audio_retention_hours"`
	AudioMaxFiles       int `mapstructure:"voice_mcp_audio_max_files"`

	SettingsPath   string `mapstructure:"voice_mcp_settings_path"`
	ProbeTimeoutMs int    `mapstructure:"voice_mcp_probe_timeout_ms"`
	HTTPTimeoutMs  int    `mapstructure:"voice_mcp_http_timeout_ms"`
	HTTPAddr       string `mapstructure:"voice_mcp_http_addr"`

	LiveKitURL       string `mapstructure:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret"`

	LogLevel string `mapstructure:"log_level"`
}

// ProbeTimeout is the per-attempt bound for availability probes.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// HTTPTimeout bounds synthesis and recognition calls.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

// SilenceSpan is the continuous silence that ends a capture.
func (c Config) SilenceSpan() time.Duration {
	return time.Duration(c.SilenceTimeout * float64(time.Second))
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".voice-mcp")

	v.SetDefault("openai_api_key", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("tts_base_url", DefaultOpenAIBaseURL)
	v.SetDefault("stt_base_url", DefaultOpenAIBaseURL)
	v.SetDefault("kokoro_tts_base_url", DefaultKokoroBaseURL)
	v.SetDefault("tts_voice", "")
	v.SetDefault("tts_model", "")
	v.SetDefault("stt_model", "whisper-1")
	v.SetDefault("gemini_system_prompt", "")
	v.SetDefault("voice_mcp_prefer_local", true)
	v.SetDefault("voice_allow_emotions", false)
	v.SetDefault("voice_mcp_auto_start_kokoro", false)
	v.SetDefault("voice_mcp_silence_timeout", 2.5)
	v.SetDefault("voice_mcp_silence_threshold", 100.0)
	v.SetDefault("voice_mcp_sample_rate", 24000)
	v.SetDefault("voice_mcp_channels", 1)
	v.SetDefault("voice_mcp_audio_feedback", "chime")
	v.SetDefault("voice_mcp_feedback_voice", "nova")
	v.SetDefault("voice_mcp_feedback_style", "whisper")
	v.SetDefault("voice_mcp_upload_format", "ogg")
	v.SetDefault("voice_mcp_save_audio", false)
	v.SetDefault("voice_mcp_audio_dir", filepath.Join(base, "audio"))
	v.SetDefault("voice_mcp_debug", false)
	v.SetDefault("voice_mcp_debug_dir", filepath.Join(base, "debug"))
	v.SetDefault("voice_mcp_audio_retention_hours", 24*7)
	v.SetDefault("voice_mcp_audio_max_files", 500)
	v.SetDefault("voice_mcp_settings_path", filepath.Join(base, "user_settings.json"))
	v.SetDefault("voice_mcp_probe_timeout_ms", 2000)
	v.SetDefault("voice_mcp_http_timeout_ms", 30000)
	v.SetDefault("voice_mcp_http_addr", "")
	v.SetDefault("livekit_url", "ws://localhost:7880")
	v.SetDefault("livekit_api_key", "")
	v.SetDefault("livekit_api_secret", "")
	v.SetDefault("log_level", "info")
}

// Load reads .env (if present), then the environment and the optional file
// named by VOICE_MCP_CONFIG. Environment wins over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.Getenv("VOICE_MCP_CONFIG"))
}

// LoadFrom is Load without the .env step. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.TTSBaseURL = strings.TrimRight(cfg.TTSBaseURL, "/")
	cfg.STTBaseURL = strings.TrimRight(cfg.STTBaseURL, "/")
	cfg.KokoroBaseURL = strings.TrimRight(cfg.KokoroBaseURL, "/")
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("silence timeout must be positive, got %v", c.SilenceTimeout)
	}
	if c.ProbeTimeoutMs <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %dms", c.ProbeTimeoutMs)
	}
	switch c.UploadFormat {
	case "ogg", "wav":
	default:
		return fmt.Errorf("upload format must be ogg or wav, got %q", c.UploadFormat)
	}
	return nil
}
