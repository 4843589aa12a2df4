package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-mcp-lab/internal/provider"
)

func TestOpenAISpeechPostsPayload(t *testing.T) {
	var got speechPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer ts.Close()

	c := &OpenAISpeech{APIKey: "sk-test", HTTP: ts.Client()}
	out, err := c.Synthesize(context.Background(), Request{
		Endpoint:     ts.URL + "/v1/",
		Text:         "hello",
		Voice:        "nova",
		Model:        "gpt-4o-mini-tts",
		Instructions: "Sound cheerful",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), out.Data)
	assert.False(t, out.Raw)
	assert.Equal(t, speechPayload{Model: "gpt-4o-mini-tts", Input: "hello", Voice: "nova", ResponseFormat: "wav", Instructions: "Sound cheerful"}, got)
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer ts.Close()

	c := &OpenAISpeech{HTTP: ts.Client(), Attempts: 2}
	_, err := c.Synthesize(context.Background(), Request{Endpoint: ts.URL, Text: "x", Voice: "af_sky", Model: "tts-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPermanentErrorNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer ts.Close()

	c := &OpenAISpeech{HTTP: ts.Client(), Attempts: 3}
	_, err := c.Synthesize(context.Background(), Request{Endpoint: ts.URL, Text: "x"})
	assert.ErrorIs(t, err, ErrPermanent)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func sseEvent(t *testing.T, mime string, pcm []byte) string {
	t.Helper()
	chunk := map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role": "model",
				"parts": []any{map[string]any{
					"inlineData": map[string]any{"mimeType": mime, "data": base64.StdEncoding.EncodeToString(pcm)},
				}},
			},
		}},
	}
	b, err := json.Marshal(chunk)
	assert.NoError(t, err)
	return "data: " + string(b) + "\n\n"
}

func TestGeminiConcatenatesSegments(t *testing.T) {
	var req geminiRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash-preview-tts:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseEvent(t, "audio/L16;codec=pcm;rate=24000", []byte{1, 2}))
		fmt.Fprint(w, "data: {\"candidates\":[{}]}\n\n")
		fmt.Fprint(w, sseEvent(t, "audio/L16;codec=pcm;rate=24000", []byte{3, 4, 5, 6}))
	}))
	defer ts.Close()

	c := &GeminiSpeech{APIKey: "g-key", HTTP: ts.Client()}
	out, err := c.Synthesize(context.Background(), Request{
		Endpoint:     ts.URL + "/v1beta",
		Text:         "hello there",
		Voice:        "Zephyr",
		Model:        "gemini-2.5-flash-preview-tts",
		Instructions: provider.DefaultGeminiPrompt,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out.Data)
	assert.True(t, out.Raw)
	assert.Equal(t, "audio/L16;codec=pcm;rate=24000", out.MIME)
	assert.Equal(t, "Zephyr", req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Equal(t, provider.DefaultGeminiPrompt+" hello there", req.Contents[0].Parts[0].Text)
}

func TestGeminiEmptyStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[]}\n\n")
	}))
	defer ts.Close()

	c := &GeminiSpeech{APIKey: "k", HTTP: ts.Client()}
	_, err := c.Synthesize(context.Background(), Request{Endpoint: ts.URL, Text: "x", Model: "m"})
	assert.ErrorIs(t, err, ErrNoAudio)
	assert.Equal(t, "no audio data received from Gemini API", ErrNoAudio.Error())
}

func TestGeminiStalledStreamTimesOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseEvent(t, "audio/L16;rate=24000", []byte{1, 2}))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := &GeminiSpeech{APIKey: "k", HTTP: ts.Client(), IdleTimeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := c.Synthesize(context.Background(), Request{Endpoint: ts.URL, Text: "x", Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "stalled")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGeminiSlowStreamWithinIdleTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 3; i++ {
			fmt.Fprint(w, sseEvent(t, "audio/L16;rate=24000", []byte{byte(i), 0}))
			w.(http.Flusher).Flush()
			time.Sleep(60 * time.Millisecond)
		}
	}))
	defer ts.Close()

	// the whole stream outlasts the idle timeout, each gap does not
	c := &GeminiSpeech{APIKey: "k", HTTP: ts.Client(), IdleTimeout: 150 * time.Millisecond}
	out, err := c.Synthesize(context.Background(), Request{Endpoint: ts.URL, Text: "x", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0}, out.Data)
}

func TestTranscriberMultipartAndTrim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "text", r.FormValue("response_format"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "speech.ogg", hdr.Filename)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "OggS", string(b))
		fmt.Fprint(w, "  hello world \n")
	}))
	defer ts.Close()

	tr := &Transcriber{HTTP: ts.Client()}
	text, err := tr.Transcribe(context.Background(), Transcription{
		Endpoint: ts.URL + "/v1",
		Model:    "whisper-1",
		Audio:    []byte("OggS"),
		Filename: "speech.ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscriberRejectsEmptyAudio(t *testing.T) {
	_, err := (&Transcriber{}).Transcribe(context.Background(), Transcription{Endpoint: "http://unused"})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestClientsLookup(t *testing.T) {
	c := NewClients(ClientOptions{OpenAIAPIKey: "k"})
	for _, key := range []provider.ClientKey{provider.ClientTTSKokoro, provider.ClientTTSOpenAI, provider.ClientTTSGemini} {
		_, err := c.Synthesizer(key)
		assert.NoError(t, err, key)
	}
	for _, key := range []provider.ClientKey{provider.ClientSTTLocal, provider.ClientSTTOpenAI} {
		_, err := c.Recognizer(key)
		assert.NoError(t, err, key)
	}
	_, err := c.Synthesizer(provider.ClientSTTLocal)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.True(t, strings.Contains(err.Error(), "stt-local"))
}
