package voice

import (
	"context"
	"errors"
	"strings"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/settings"
)

// Cue is a turn boundary announced to the user.
type Cue string

const (
	CueListening Cue = "listening"
	CueFinished  Cue = "finished"
)

const (
	StyleWhisper = "whisper"
	StyleShout   = "shout"

	whisperInstructions = "Whisper this word very softly and gently, almost inaudibly"
)

// Feedback plays chimes and spoken cues around recording.
type Feedback struct {
	Mode  string
	Style string
	// Voice cues always go through the hosted OpenAI emotion model.
	Voice    string
	Endpoint string

	Out        audio.Player
	Speaker    *Pipeline
	SampleRate int
}

// Play emits cue in the given mode, or f.Mode when mode is empty. Errors
// are returned for logging only; callers never fail a turn on them.
func (f *Feedback) Play(ctx context.Context, cue Cue, mode, style string) error {
	if f == nil {
		return nil
	}
	if mode == "" {
		mode = f.Mode
	}
	if style == "" {
		style = f.Style
	}
	var errs []error
	if mode == settings.FeedbackChime || mode == settings.FeedbackBoth {
		errs = append(errs, f.chime(ctx, cue))
	}
	if mode == settings.FeedbackVoice || mode == settings.FeedbackBoth {
		errs = append(errs, f.speak(ctx, cue, style))
	}
	return errors.Join(errs...)
}

func (f *Feedback) chime(ctx context.Context, cue Cue) error {
	if f.Out == nil {
		return audio.ErrNoDevice
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	buf := audio.StartChime(rate, 1)
	if cue == CueFinished {
		buf = audio.EndChime(rate, 1)
	}
	return f.Out.Play(ctx, buf)
}

func (f *Feedback) speak(ctx context.Context, cue Cue, style string) error {
	if f.Speaker == nil {
		return nil
	}
	text, instructions := CueText(cue, style)
	ok, _ := f.Speaker.Speak(ctx, text, "", provider.ResolvedConfig{
		Backend:      provider.OpenAI,
		Endpoint:     f.Endpoint,
		Model:        provider.EmotionModel,
		Voice:        f.Voice,
		Instructions: instructions,
		ClientKey:    provider.ClientTTSOpenAI,
	})
	if !ok {
		return errors.New("voice cue failed")
	}
	return nil
}

// CueText returns the spoken form of cue and its style instructions.
func CueText(cue Cue, style string) (string, string) {
	if style == StyleShout {
		instr := "SHOUT this word loudly and triumphantly!"
		if cue == CueListening {
			instr = "SHOUT this word loudly and enthusiastically!"
		}
		return strings.ToUpper(string(cue)), instr
	}
	return strings.ToLower(string(cue)), whisperInstructions
}

// PlayAsync launches the cue and returns a wait function. The cue's error is
// logged, never propagated.
func (f *Feedback) PlayAsync(ctx context.Context, cue Cue, mode, style string) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := f.Play(ctx, cue, mode, style); err != nil {
			logging.DebugwCtx(ctx, "voice: audio feedback failed", "cue", string(cue), "err", err)
		}
	}()
	return func() { <-done }
}
