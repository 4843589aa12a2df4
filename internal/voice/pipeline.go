// Package voice synthesizes and plays speech, plays listening cues and keeps
// saved turn audio.
package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/fileio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/speech"
)

// Player plays an audio file to completion.
type Player interface {
	PlayFile(ctx context.Context, path string) error
}

// DevicePlayer decodes WAV files and hands the samples to an output device.
type DevicePlayer struct {
	Out audio.Player
}

func (p DevicePlayer) PlayFile(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, samples, err := audio.DecodeWAV(b)
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return p.Out.Play(ctx, audio.Buffer{Samples: samples, SampleRate: info.SampleRate, Channels: info.Channels})
}

// SpeakTimings are the measured phases of one Speak call.
type SpeakTimings struct {
	Gen  time.Duration
	Play time.Duration
}

// Pipeline is the synthesis and playback path.
type Pipeline struct {
	Clients *speech.Clients
	Player  Player
	// Archive and Debug are optional; nil drops saved copies.
	Archive *Archive
	Debug   *Archive
}

// Speak synthesizes text with the backend cfg names and plays it. Failures
// are logged and reported as false; no file is written when the backend
// returned no audio.
func (p *Pipeline) Speak(ctx context.Context, text, turnID string, cfg provider.ResolvedConfig) (bool, SpeakTimings) {
	var t SpeakTimings
	log := logging.WithFields(ctx, logging.BackendFields(cfg.Backend.String(), cfg.Model, cfg.Voice)...)

	synth, err := p.Clients.Synthesizer(cfg.ClientKey)
	if err != nil {
		logging.ErrorwCtx(log, "voice: no synthesizer", "err", err)
		return false, t
	}
	start := time.Now()
	out, err := synth.Synthesize(ctx, speech.Request{
		Endpoint:      cfg.Endpoint,
		Text:          text,
		Voice:         cfg.Voice,
		Model:         cfg.Model,
		Instructions:  cfg.Instructions,
		CorrelationID: turnID,
	})
	t.Gen = time.Since(start)
	if err != nil {
		logging.ErrorwCtx(log, "voice: synthesis failed", "err", err, "endpoint", cfg.Endpoint)
		return false, t
	}
	if len(out.Data) == 0 {
		logging.ErrorwCtx(log, "voice: synthesis returned no audio")
		return false, t
	}
	data := out.Data
	if out.Raw {
		rate, bits := audio.ParseMIME(out.MIME)
		data = audio.SynthesizeHeader(out.Data, bits, rate, 1)
	}

	if _, err := p.Archive.Save("tts", audio.FormatWAV, turnID, data); err != nil {
		logging.WarnwCtx(log, "voice: could not save tts audio", "err", err)
	}
	if _, err := p.Debug.Save("tts-output", audio.FormatWAV, turnID, data); err != nil {
		logging.DebugwCtx(log, "voice: could not save debug audio", "err", err)
	}

	path, err := fileio.WriteTemp("voicemcp-tts-*.wav", data)
	if err != nil {
		logging.ErrorwCtx(log, "voice: could not write temp audio", "err", err)
		return false, t
	}
	defer os.Remove(path)

	start = time.Now()
	err = p.Player.PlayFile(ctx, path)
	t.Play = time.Since(start)
	if err != nil {
		logging.ErrorwCtx(log, "voice: playback failed", "err", err)
		return false, t
	}
	logging.InfowCtx(log, "voice: spoke message", "gen_ms", t.Gen.Milliseconds(), "play_ms", t.Play.Milliseconds(), "chars", len(text))
	return true, t
}
