// Package turn sequences one spoken exchange: speak, cue, record,
// transcribe, under an exclusive FIFO device lock.
package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/metrics"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/room"
	"github.com/voice-mcp-lab/internal/settings"
	"github.com/voice-mcp-lab/internal/speech"
	"github.com/voice-mcp-lab/internal/voice"
)

// Transports accepted in Request.Transport.
const (
	TransportAuto    = "auto"
	TransportLocal   = "local"
	TransportLiveKit = "livekit"
)

const (
	defaultListenPause  = 500 * time.Millisecond
	defaultRoomTimeout  = 60 * time.Second
	defaultCaptureGrace = 5 * time.Second
	defaultUploadFormat = audio.FormatOgg
)

// Outcomes as recorded in voicemcp_turns_total.
const (
	OutcomeSpoken       = "spoken"
	OutcomeSpeakFailed  = "speak_failed"
	OutcomeSuccess      = "success"
	OutcomeNoSpeech     = "no_speech"
	OutcomeRecordFailed = "record_failed"
	OutcomeDelegated    = "delegated"
	OutcomeError        = "error"
)

// Resolver picks backends for each call.
type Resolver interface {
	ResolveSynthesis(ctx context.Context, req provider.SynthesisRequest, prefs provider.Preferences, env provider.Environment) provider.ResolvedConfig
	ResolveRecognition(ctx context.Context, explicit string, prefs provider.Preferences, env provider.Environment) provider.ResolvedConfig
}

// SettingsSource supplies the saved settings and applied environment.
type SettingsSource interface {
	Load() (settings.VoiceSettings, error)
	Environment() provider.Environment
}

// Speaker is the synthesis and playback path.
type Speaker interface {
	Speak(ctx context.Context, text, turnID string, cfg provider.ResolvedConfig) (bool, voice.SpeakTimings)
}

// Capturer records a reply.
type Capturer interface {
	Capture(ctx context.Context, silenceSpan, ceiling time.Duration) audio.Buffer
}

// Cues plays listening and finished signals. PlayAsync returns a function
// that waits for the cue to finish.
type Cues interface {
	Play(ctx context.Context, cue voice.Cue, mode, style string) error
	PlayAsync(ctx context.Context, cue voice.Cue, mode, style string) (wait func())
}

// Recognizers looks up recognition clients.
type Recognizers interface {
	Recognizer(key provider.ClientKey) (speech.Recognizer, error)
}

// RoomProbe reports whether the room transport has someone listening.
type RoomProbe interface {
	Available(ctx context.Context) bool
}

// Request is one converse call. Zero values mean "use the saved setting".
type Request struct {
	Message         string
	WaitForResponse bool
	ListenDuration  time.Duration
	Transport       string
	RoomName        string
	Timeout         time.Duration
	Voice           string
	TTSProvider     string
	TTSModel        string
	TTSInstructions string
	// AudioFeedback false disables cues for this call; nil uses the setting.
	AudioFeedback *bool
	FeedbackStyle string
}

// Result is the outcome of one turn.
type Result struct {
	Message    string
	Transcript string
	Outcome    string
	Timings    Timings
}

// Orchestrator runs turns. All fields except Settings, Resolver, Speaker,
// Capture and Recognizers are optional.
type Orchestrator struct {
	Settings    SettingsSource
	Resolver    Resolver
	Speaker     Speaker
	Capture     Capturer
	Recognizers Recognizers
	Cues        Cues
	Room        RoomProbe
	Delegate    room.Delegate
	Lock        *DeviceLock
	Metrics     *metrics.Metrics
	Archive     *voice.Archive
	Debug       *voice.Archive

	FeedbackStyle string
	UploadFormat  string
	ListenPause   time.Duration

	sleep        func(ctx context.Context, d time.Duration)
	captureGrace time.Duration
}

// Converse runs one turn and renders it for the caller.
func (o *Orchestrator) Converse(ctx context.Context, req Request) string {
	return o.Run(ctx, req).Message
}

// AskVoiceQuestion speaks question and waits for the answer.
func (o *Orchestrator) AskVoiceQuestion(ctx context.Context, req Request) string {
	req.WaitForResponse = true
	return o.Converse(ctx, req)
}

// Run executes a turn. It never panics; unexpected failures become an
// "Error: ..." result after the device is released.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res Result) {
	turnID := uuid.NewString()
	transport := req.Transport
	if transport == "" {
		transport = TransportAuto
	}
	ctx = logging.WithFields(ctx, logging.TurnFields(turnID, transport)...)
	start := time.Now()
	logging.InfowCtx(ctx, "turn: converse", "message", truncate(req.Message, 50), "wait_for_response", req.WaitForResponse)

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorwCtx(ctx, "turn: unexpected failure", "panic", r)
			res = Result{Message: fmt.Sprintf("Error: %v", r), Outcome: OutcomeError, Timings: res.Timings}
		}
		o.Metrics.TurnOutcome(res.Outcome)
		logging.InfowCtx(ctx, "turn: completed", "outcome", res.Outcome, "elapsed_ms", time.Since(start).Milliseconds())
	}()

	vs, err := o.Settings.Load()
	if err != nil {
		logging.WarnwCtx(ctx, "turn: settings unavailable, using defaults", "err", err)
		vs = settings.Defaults()
	}

	if !req.WaitForResponse {
		return o.speakOnly(ctx, turnID, req, vs)
	}

	if transport == TransportAuto {
		transport = TransportLocal
		if o.canDelegate() && o.Room != nil && o.Room.Available(ctx) {
			transport = TransportLiveKit
		}
		logging.InfowCtx(ctx, "turn: auto-selected transport", "selected", transport)
	}
	switch transport {
	case TransportLiveKit:
		return o.delegate(ctx, req)
	case TransportLocal:
		return o.local(ctx, turnID, req, vs)
	default:
		return Result{Message: "Unknown transport: " + transport, Outcome: OutcomeError}
	}
}

func (o *Orchestrator) speakOnly(ctx context.Context, turnID string, req Request, vs settings.VoiceSettings) Result {
	if err := o.acquire(ctx); err != nil {
		return Result{Message: "Error: " + err.Error(), Outcome: OutcomeError}
	}
	defer o.release()

	m := NewMachine()
	o.advance(m, Speaking)
	cfg := o.resolveSynthesis(ctx, req, vs)
	ok, st := o.Speaker.Speak(ctx, req.Message, turnID, cfg)
	var t Timings
	t.Set(PhaseTTSGen, st.Gen)
	t.Set(PhaseTTSPlay, st.Play)
	o.observe(&t)
	if !ok {
		m.Fail()
		return Result{Message: "✗ Failed to speak message", Outcome: OutcomeSpeakFailed, Timings: t}
	}
	o.advance(m, Done)
	return Result{
		Message: fmt.Sprintf("✓ Message spoken successfully (gen: %.1fs, play: %.1fs)", st.Gen.Seconds(), st.Play.Seconds()),
		Outcome: OutcomeSpoken,
		Timings: t,
	}
}

// canDelegate reports whether a room transport is wired in. Auto selection
// never routes to a delegate that can only refuse.
func (o *Orchestrator) canDelegate() bool {
	switch o.Delegate.(type) {
	case nil, room.Unsupported, *room.Unsupported:
		return false
	}
	return true
}

func (o *Orchestrator) delegate(ctx context.Context, req Request) Result {
	d := o.Delegate
	if d == nil {
		d = room.Unsupported{}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultRoomTimeout
	}
	text, err := d.AskVoiceQuestion(ctx, req.Message, req.RoomName, timeout)
	if err != nil {
		logging.ErrorwCtx(ctx, "turn: room transport failed", "err", err)
		return Result{Message: "LiveKit error: " + err.Error(), Outcome: OutcomeError}
	}
	return Result{Message: text, Transcript: text, Outcome: OutcomeDelegated}
}

func (o *Orchestrator) local(ctx context.Context, turnID string, req Request, vs settings.VoiceSettings) Result {
	var t Timings
	if err := o.acquire(ctx); err != nil {
		return Result{Message: "Error: " + err.Error(), Outcome: OutcomeError}
	}
	defer o.release()
	defer o.observe(&t)

	m := NewMachine()
	o.advance(m, Speaking)
	ttsStart := time.Now()
	cfg := o.resolveSynthesis(ctx, req, vs)
	ok, st := o.Speaker.Speak(ctx, req.Message, turnID, cfg)
	t.Set(PhaseTTSGen, st.Gen)
	t.Set(PhaseTTSPlay, st.Play)
	t.Set(PhaseTTSTotal, time.Since(ttsStart))
	if !ok {
		m.Fail()
		return Result{Message: "Error: Could not speak message", Outcome: OutcomeSpeakFailed, Timings: t}
	}

	o.advance(m, ListeningSignal)
	o.pause(ctx)
	mode, style := o.feedbackMode(req, vs)
	o.cue(ctx, voice.CueListening, mode, style)

	o.advance(m, Recording)
	ceiling := req.ListenDuration
	if ceiling <= 0 {
		ceiling = vs.ListenCeiling()
	}
	logging.InfowCtx(ctx, "turn: listening", "ceiling_s", ceiling.Seconds(), "silence_s", vs.SilenceSpan().Seconds())
	recStart := time.Now()
	buf := o.record(ctx, vs.SilenceSpan(), ceiling)
	t.Set(PhaseRecord, time.Since(recStart))

	o.advance(m, FinishedSignal)
	// the finished cue overlaps transcription but ends before the device is
	// released
	defer o.cueAsync(ctx, voice.CueFinished, mode, style)()
	if buf.Empty() {
		m.Fail()
		return Result{Message: "Error: Could not record audio", Outcome: OutcomeRecordFailed, Timings: t}
	}
	o.Metrics.ObserveCapture(buf.Duration())

	o.advance(m, Transcribing)
	sttStart := time.Now()
	text := o.transcribe(ctx, turnID, buf, vs)
	t.Set(PhaseSTT, time.Since(sttStart))
	o.advance(m, Done)

	if text == "" {
		return Result{Message: "No speech detected | Timing: " + t.Summary(), Outcome: OutcomeNoSpeech, Timings: t}
	}
	return Result{
		Message:    fmt.Sprintf("Voice response: %s | Timing: %s", text, t.Summary()),
		Transcript: text,
		Outcome:    OutcomeSuccess,
		Timings:    t,
	}
}

func (o *Orchestrator) resolveSynthesis(ctx context.Context, req Request, vs settings.VoiceSettings) provider.ResolvedConfig {
	cfg := o.Resolver.ResolveSynthesis(ctx, provider.SynthesisRequest{
		Provider:     req.TTSProvider,
		Voice:        req.Voice,
		Model:        req.TTSModel,
		Instructions: req.TTSInstructions,
	}, vs.Preferences(), o.Settings.Environment())
	logging.InfowCtx(ctx, "turn: synthesis resolved", logging.BackendFields(cfg.Backend.String(), cfg.Model, cfg.Voice)...)
	return cfg
}

// record runs the capture on its own goroutine, bounded by the ceiling plus
// a grace period of wall time. A capture that overruns is abandoned; ch is
// buffered so its late result is dropped without blocking.
func (o *Orchestrator) record(ctx context.Context, silence, ceiling time.Duration) audio.Buffer {
	grace := o.captureGrace
	if grace <= 0 {
		grace = defaultCaptureGrace
	}
	rctx, cancel := context.WithTimeout(ctx, ceiling+grace)
	defer cancel()
	ch := make(chan audio.Buffer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorwCtx(ctx, "turn: capture panicked", "panic", r)
				ch <- audio.Buffer{}
			}
		}()
		ch <- o.Capture.Capture(rctx, silence, ceiling)
	}()
	select {
	case buf := <-ch:
		return buf
	case <-rctx.Done():
		logging.WarnwCtx(ctx, "turn: capture overran its deadline, abandoning it", "err", rctx.Err(), "ceiling_s", ceiling.Seconds())
		return audio.Buffer{}
	}
}

// transcribe saves and uploads buf. Recognition failures are logged and
// reported as no speech.
func (o *Orchestrator) transcribe(ctx context.Context, turnID string, buf audio.Buffer, vs settings.VoiceSettings) string {
	wav := audio.ToContainer(buf)
	if _, err := o.Archive.Save("stt", audio.FormatWAV, turnID, wav); err != nil {
		logging.WarnwCtx(ctx, "turn: could not save recording", "err", err)
	}
	if _, err := o.Debug.Save("stt-input", audio.FormatWAV, turnID, wav); err != nil {
		logging.DebugwCtx(ctx, "turn: could not save debug recording", "err", err)
	}

	format := o.UploadFormat
	if format == "" {
		format = defaultUploadFormat
	}
	data, ext, err := audio.Encode(buf, format)
	if err != nil {
		logging.WarnwCtx(ctx, "turn: compression failed, uploading wav", "err", err)
		data, ext = wav, audio.FormatWAV
	}
	if _, err := o.Debug.Save("stt-upload", ext, turnID, data); err != nil {
		logging.DebugwCtx(ctx, "turn: could not save debug upload", "err", err)
	}

	cfg := o.Resolver.ResolveRecognition(ctx, "", vs.Preferences(), o.Settings.Environment())
	rec, err := o.Recognizers.Recognizer(cfg.ClientKey)
	if err != nil {
		logging.ErrorwCtx(ctx, "turn: no recognizer", "err", err)
		return ""
	}
	text, err := rec.Transcribe(ctx, speech.Transcription{
		Endpoint:      cfg.Endpoint,
		Model:         cfg.Model,
		Audio:         data,
		Filename:      "speech." + ext,
		CorrelationID: turnID,
	})
	if err != nil {
		logging.ErrorwCtx(ctx, "turn: transcription failed", "err", err, "endpoint", cfg.Endpoint, "model", cfg.Model)
		return ""
	}
	return text
}

func (o *Orchestrator) feedbackMode(req Request, vs settings.VoiceSettings) (string, string) {
	mode := vs.AudioFeedback
	if req.AudioFeedback != nil && !*req.AudioFeedback {
		mode = settings.FeedbackNone
	}
	style := req.FeedbackStyle
	if style == "" {
		style = o.FeedbackStyle
	}
	return mode, style
}

func (o *Orchestrator) cue(ctx context.Context, c voice.Cue, mode, style string) {
	if o.Cues == nil || mode == settings.FeedbackNone {
		return
	}
	if err := o.Cues.Play(ctx, c, mode, style); err != nil {
		logging.DebugwCtx(ctx, "turn: audio feedback failed", "cue", string(c), "err", err)
	}
}

func (o *Orchestrator) cueAsync(ctx context.Context, c voice.Cue, mode, style string) (wait func()) {
	if o.Cues == nil || mode == settings.FeedbackNone {
		return func() {}
	}
	return o.Cues.PlayAsync(ctx, c, mode, style)
}

func (o *Orchestrator) pause(ctx context.Context) {
	d := o.ListenPause
	if d == 0 {
		d = defaultListenPause
	}
	if o.sleep != nil {
		o.sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if o.Lock != nil {
		if err := o.Lock.Lock(ctx); err != nil {
			return fmt.Errorf("waiting for audio device: %w", err)
		}
	}
	o.Metrics.TurnStarted()
	return nil
}

func (o *Orchestrator) release() {
	o.Metrics.TurnFinished()
	if o.Lock != nil {
		o.Lock.Unlock()
	}
}

func (o *Orchestrator) observe(t *Timings) {
	for _, p := range t.Phases() {
		d, _ := t.Get(p)
		o.Metrics.ObservePhase(p, d)
	}
}

// advance panics on a sequencing bug; Run recovers it.
func (o *Orchestrator) advance(m *Machine, next State) {
	if err := m.Transition(next); err != nil {
		panic(err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ChatRequest starts a voice chat session.
type ChatRequest struct {
	InitialMessage string
	MaxTurns       int
	ListenDuration time.Duration
	Voice          string
	TTSProvider    string
}

var exitPhrases = []string{"goodbye", "exit", "end chat", "stop", "quit"}

const defaultChatTurns = 10

// VoiceChat runs the opening turn of a chat and returns the transcript so
// far with the turns left. The caller continues the conversation with
// Converse.
func (o *Orchestrator) VoiceChat(ctx context.Context, req ChatRequest) string {
	remaining := req.MaxTurns
	if remaining <= 0 {
		remaining = defaultChatTurns
	}
	var transcript []string
	if req.InitialMessage != "" {
		remaining--
		res := o.Run(ctx, Request{
			Message:         req.InitialMessage,
			WaitForResponse: true,
			ListenDuration:  req.ListenDuration,
			Voice:           req.Voice,
			TTSProvider:     req.TTSProvider,
		})
		transcript = append(transcript, "Assistant: "+req.InitialMessage)
		if res.Transcript != "" {
			transcript = append(transcript, "User: "+res.Transcript)
			lower := strings.ToLower(res.Transcript)
			for _, p := range exitPhrases {
				if strings.Contains(lower, p) {
					return strings.Join(transcript, "\n") + "\n\nChat ended by user."
				}
			}
		}
	}
	if remaining <= 0 {
		return strings.Join(transcript, "\n") + "\n\nChat ended: turn limit reached."
	}
	return fmt.Sprintf("Voice chat started. Use the converse tool in a loop to continue the conversation (%d turns remaining).\n\nTranscript so far:\n", remaining) + strings.Join(transcript, "\n")
}
