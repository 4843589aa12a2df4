package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, DefaultOpenAIBaseURL, cfg.TTSBaseURL)
	assert.Equal(t, DefaultKokoroBaseURL, cfg.KokoroBaseURL)
	assert.Equal(t, "whisper-1", cfg.STTModel)
	assert.True(t, cfg.PreferLocal)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, 2500*time.Millisecond, cfg.SilenceSpan())
	assert.Equal(t, 24000, cfg.SampleRate)
	assert.Equal(t, "user_settings.json", filepath.Base(cfg.SettingsPath))
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("TTS_BASE_URL", "http://127.0.0.1:8880/v1/")
	t.Setenv("VOICE_MCP_PREFER_LOCAL", "false")
	t.Setenv("VOICE_MCP_SILENCE_TIMEOUT", "1.5")
	t.Setenv("VOICE_MCP_PROBE_TIMEOUT_MS", "250")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8880/v1", cfg.TTSBaseURL, "trailing slash trimmed")
	assert.False(t, cfg.PreferLocal)
	assert.Equal(t, 1500*time.Millisecond, cfg.SilenceSpan())
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeTimeout())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicemcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tts_voice: af_sarah\nvoice_mcp_sample_rate: 16000\n"), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "af_sarah", cfg.TTSVoice)
	assert.Equal(t, 16000, cfg.SampleRate)
}

func TestLoadFromRejectsBadSampleRate(t *testing.T) {
	t.Setenv("VOICE_MCP_SAMPLE_RATE", "0")
	_, err := LoadFrom("")
	require.Error(t, err)
}

func TestLoadFromUploadFormat(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "ogg", cfg.UploadFormat)

	t.Setenv("VOICE_MCP_UPLOAD_FORMAT", "wav")
	cfg, err = LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "wav", cfg.UploadFormat)

	t.Setenv("VOICE_MCP_UPLOAD_FORMAT", "mp3")
	_, err = LoadFrom("")
	require.Error(t, err)
}
