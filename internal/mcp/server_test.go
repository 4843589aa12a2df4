package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/config"
	"github.com/voice-mcp-lab/internal/metrics"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/settings"
	"github.com/voice-mcp-lab/internal/turn"
	"github.com/voice-mcp-lab/internal/voice"
)

type fakeTurns struct {
	mu   sync.Mutex
	reqs []turn.Request
	chat []turn.ChatRequest
}

func (f *fakeTurns) Run(_ context.Context, req turn.Request) turn.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if !req.WaitForResponse {
		return turn.Result{Message: "✓ Message spoken successfully (gen: 0.1s, play: 0.2s)"}
	}
	return turn.Result{Message: "Voice response: fine thanks | Timing: total 1.0s"}
}

func (f *fakeTurns) VoiceChat(_ context.Context, req turn.ChatRequest) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chat = append(f.chat, req)
	return "Voice chat started."
}

type fakeProber map[provider.Backend]bool

func (f fakeProber) ProbeAll(context.Context, []provider.Descriptor, time.Duration) map[provider.Backend]bool {
	return f
}

type fakeDevices []audio.DeviceInfo

func (f fakeDevices) Devices() ([]audio.DeviceInfo, error) { return f, nil }

type fixture struct {
	client *ClientWrapper
	turns  *fakeTurns
	svc    *settings.Service
	m      *metrics.Metrics
	dir    string
}

func newFixture(t *testing.T, archive bool) *fixture {
	t.Helper()
	f := &fixture{turns: &fakeTurns{}, m: metrics.New("test"), dir: t.TempDir()}
	f.svc = settings.NewService(filepath.Join(f.dir, "user_settings.json"), config.Config{
		TTSBaseURL: config.DefaultOpenAIBaseURL,
		STTBaseURL: config.DefaultOpenAIBaseURL,
		STTModel:   "whisper-1",
	})
	d := Deps{
		Turns:    f.turns,
		Settings: f.svc,
		Registry: provider.NewRegistry(),
		Prober:   fakeProber{provider.Kokoro: true, provider.OpenAI: true},
		Devices: fakeDevices{
			{Index: 0, Name: "USB Mic", MaxInputChannels: 1, DefaultInput: true},
			{Index: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultOutput: true},
		},
		Metrics:    f.m,
		LiveKitURL: "ws://localhost:7880",
	}
	if archive {
		d.Archive = voice.NewArchive(filepath.Join(f.dir, "audio"))
	}
	server := NewServer(d)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ct, st := sdk.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	f.client = NewClientWrapper("test-client", "test")
	require.NoError(t, f.client.ConnectTransport(ctx, ct))
	t.Cleanup(func() { _ = f.client.Close() })
	return f
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := f.client.CallText(ctx, tool, args)
	require.NoError(t, err)
	return out
}

func TestAllToolsRegistered(t *testing.T) {
	f := newFixture(t, false)
	names, err := f.client.ToolNames(context.Background())
	require.NoError(t, err)
	for _, want := range []string{
		"converse", "ask_voice_question", "voice_chat",
		"get_voice_settings", "set_tts_provider", "set_tts_voice", "set_stt_provider",
		"set_silence_timeout", "set_listen_duration", "set_audio_feedback", "set_allow_emotions",
		"set_voice_setting", "get_available_voices", "reset_voice_settings",
		"quick_setup_local", "quick_setup_cloud", "quick_setup_hybrid",
		"check_audio_devices", "voice_status", "list_tts_voices",
	} {
		assert.Contains(t, names, want)
	}
}

func TestConverseToolMapsArguments(t *testing.T) {
	f := newFixture(t, false)

	out := f.call(t, "converse", map[string]any{"message": "hello", "listen_duration": 12.5, "voice": "nova", "audio_feedback": false})
	assert.Equal(t, "Voice response: fine thanks | Timing: total 1.0s", out)

	out = f.call(t, "converse", map[string]any{"message": "bye", "wait_for_response": false})
	assert.True(t, strings.HasPrefix(out, "✓ Message spoken successfully"), out)

	require.Len(t, f.turns.reqs, 2)
	first := f.turns.reqs[0]
	assert.True(t, first.WaitForResponse, "waiting is the default")
	assert.Equal(t, 12500*time.Millisecond, first.ListenDuration)
	assert.Equal(t, "nova", first.Voice)
	require.NotNil(t, first.AudioFeedback)
	assert.False(t, *first.AudioFeedback)
	assert.False(t, f.turns.reqs[1].WaitForResponse)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.ToolCalls.WithLabelValues("converse")))
}

func TestAskAndChatTools(t *testing.T) {
	f := newFixture(t, false)
	f.call(t, "ask_voice_question", map[string]any{"question": "name?", "duration": 30})
	require.Len(t, f.turns.reqs, 1)
	assert.True(t, f.turns.reqs[0].WaitForResponse)
	assert.Equal(t, "name?", f.turns.reqs[0].Message)

	assert.Equal(t, "Voice chat started.", f.call(t, "voice_chat", map[string]any{"initial_message": "hi"}))
	require.Len(t, f.turns.chat, 1)
	assert.Equal(t, 10, f.turns.chat[0].MaxTurns)
}

func TestSettingsTools(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, "✅ TTS provider set to: kokoro", f.call(t, "set_tts_provider", map[string]any{"provider": "kokoro"}))
	assert.Equal(t, "❌ Invalid TTS provider. Use 'openai', 'kokoro' or 'gemini'.", f.call(t, "set_tts_provider", map[string]any{"provider": "espeak"}))
	assert.Equal(t, "✅ Silence timeout set to: 1.5s", f.call(t, "set_silence_timeout", map[string]any{"timeout": 1.5}))
	assert.Equal(t, "❌ Silence timeout must be between 0.1 and 60 seconds.", f.call(t, "set_silence_timeout", map[string]any{"timeout": 0}))
	assert.Equal(t, "❌ Listen duration must be between 5 and 600 seconds.", f.call(t, "set_listen_duration", map[string]any{"duration": 1}))
	assert.Equal(t, "✅ Emotional TTS enabled", f.call(t, "set_allow_emotions", map[string]any{"allow": true}))
	assert.Equal(t, "✅ listen_duration set to: 42", f.call(t, "set_voice_setting", map[string]any{"key": "listen_duration", "value": "42"}))
	assert.True(t, strings.HasPrefix(f.call(t, "set_voice_setting", map[string]any{"key": "volume", "value": "11"}), "❌ Failed to update volume"))

	vs, err := f.svc.Load()
	require.NoError(t, err)
	assert.Equal(t, "kokoro", vs.TTSProvider)
	assert.Equal(t, 1.5, vs.SilenceTimeout)
	assert.Equal(t, 42.0, vs.ListenDuration)
	assert.True(t, vs.AllowEmotions)

	out := f.call(t, "get_voice_settings", nil)
	assert.Contains(t, out, "🎙️ CURRENT VOICE SETTINGS")
	assert.Contains(t, out, "  Provider: kokoro")
	assert.Contains(t, out, "  Silence timeout: 1.5s")
	assert.Contains(t, out, "📅 Last updated: ")

	assert.Equal(t, "✅ Voice settings reset to defaults.", f.call(t, "reset_voice_settings", nil))
	vs, _ = f.svc.Load()
	assert.Empty(t, vs.TTSProvider)
}

func TestQuickSetups(t *testing.T) {
	cases := []struct {
		tool     string
		reply    string
		tts, stt string
		local    bool
	}{
		{"quick_setup_local", "✅ QUICK SETUP: Local processing configured (Kokoro TTS + Whisper STT)", "kokoro", "local", true},
		{"quick_setup_cloud", "✅ QUICK SETUP: Cloud processing configured (OpenAI TTS + STT)", "openai", "openai", false},
		{"quick_setup_hybrid", "✅ QUICK SETUP: Hybrid processing configured (OpenAI TTS + Local Whisper STT)", "openai", "local", true},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			f := newFixture(t, false)
			assert.Equal(t, tc.reply, f.call(t, tc.tool, nil))
			vs, err := f.svc.Load()
			require.NoError(t, err)
			assert.Equal(t, tc.tts, vs.TTSProvider)
			assert.Equal(t, tc.stt, vs.STTProvider)
			assert.Equal(t, tc.local, vs.PreferLocal)
			assert.Equal(t, tc.local, f.svc.Environment().PreferLocal)
		})
	}
}

func TestStatusTools(t *testing.T) {
	f := newFixture(t, false)

	devices := f.call(t, "check_audio_devices", nil)
	assert.Contains(t, devices, "Default Input: [0] USB Mic")
	assert.Contains(t, devices, "Default Output: [1] Speakers")
	assert.Contains(t, devices, "  [1] Speakers (2 channels)")

	status := f.call(t, "voice_status", nil)
	assert.Contains(t, status, "✅ Kokoro TTS (Available)")
	assert.Contains(t, status, "❌ Whisper.cpp (Unavailable)")
	assert.Contains(t, status, "   Type: STT")
	assert.Contains(t, status, "  LiveKit URL: ws://localhost:7880")
	assert.Contains(t, status, "  Input: USB Mic")

	voices := f.call(t, "list_tts_voices", map[string]any{"provider": "kokoro"})
	assert.Contains(t, voices, "🎭 Kokoro Voices")
	assert.NotContains(t, voices, "OpenAI Voices")
	assert.Equal(t, "Error: Unknown provider 'whisper'. Valid options: 'openai', 'kokoro', 'gemini'", f.call(t, "list_tts_voices", map[string]any{"provider": "whisper"}))

	all := f.call(t, "get_available_voices", nil)
	assert.Contains(t, all, "  • af_sky")
	assert.Contains(t, all, "  • Zephyr")
}

func readResource(t *testing.T, f *fixture, uri string) string {
	t.Helper()
	res, err := f.client.session.ReadResource(context.Background(), &sdk.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	return res.Contents[0].Text
}

func TestAudioResources(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, false)
		assert.Equal(t, savingDisabled, readResource(t, f, "audio://files"))
	})
	t.Run("listing and metadata", func(t *testing.T) {
		f := newFixture(t, true)
		assert.Equal(t, "No audio files found.", readResource(t, f, "audio://files"))

		dir := filepath.Join(f.dir, "audio")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a_tts.wav"), make([]byte, 2048), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a_tts.json"), []byte("{}"), 0o644))

		list := readResource(t, f, "audio://files")
		assert.Contains(t, list, "- a_tts.wav (2.0 KB)")
		assert.NotContains(t, list, "a_tts.json")

		meta := readResource(t, f, "audio://file/a_tts.wav")
		assert.Contains(t, meta, "Audio file: a_tts.wav\nSize: 2.0 KB")
		assert.Equal(t, "Audio file not found: missing.wav", readResource(t, f, "audio://file/missing.wav"))
	})
}
