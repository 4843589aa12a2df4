package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-mcp-lab/internal/config"
)

func testConfig(t *testing.T, kokoroURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		TTSBaseURL:          config.DefaultOpenAIBaseURL,
		STTBaseURL:          config.DefaultOpenAIBaseURL,
		KokoroBaseURL:       kokoroURL,
		STTModel:            "whisper-1",
		SilenceTimeout:      2.5,
		SilenceThreshold:    100,
		SampleRate:          24000,
		Channels:            1,
		AudioFeedback:       "chime",
		FeedbackVoice:       "nova",
		FeedbackStyle:       "whisper",
		UploadFormat:        "ogg",
		SaveAudio:           true,
		AudioDir:            filepath.Join(dir, "audio"),
		AudioRetentionHours: 24,
		AudioMaxFiles:       10,
		SettingsPath:        filepath.Join(dir, "user_settings.json"),
		ProbeTimeoutMs:      200,
		HTTPTimeoutMs:       1000,
	}
}

func TestInitIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	kokoro := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer kokoro.Close()

	cfg := testConfig(t, kokoro.URL+"/v1")
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, a.Init(context.Background()))
	assert.EqualValues(t, 1, hits.Load(), "a second Init must not probe again")

	_, err = os.Stat(cfg.SettingsPath)
	assert.NoError(t, err, "Init persists default settings")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Probes.WithLabelValues("kokoro", "up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Probes.WithLabelValues("whisper-local", "down")))
}

func TestInitFailureIsSticky(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/v1")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.SettingsPath = filepath.Join(blocker, "user_settings.json")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	first := a.Init(context.Background())
	require.Error(t, first)
	assert.Equal(t, first, a.Init(context.Background()))
}

func TestNewWiresOptionalParts(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/v1")
	cfg.SaveAudio = false
	cfg.UploadFormat = "wav"
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Archive)
	assert.Nil(t, a.Room, "no LiveKit credentials means no room client")
	assert.Nil(t, a.Turns.Room)
	assert.Equal(t, "wav", a.Turns.UploadFormat)
	assert.NotNil(t, a.MCPServer("test"))
}
