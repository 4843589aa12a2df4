// Package audio captures microphone input with silence endpointing and
// converts PCM between the container formats the speech backends use.
package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/voice-mcp-lab/internal/logging"
)

const (
	DefaultSilenceThreshold = 100
	DefaultSilenceSpan      = 2500 * time.Millisecond
	DefaultSampleRate       = 24000
	DefaultChannels         = 1

	// FrameDuration is the endpointing granularity.
	FrameDuration = 100 * time.Millisecond
)

// Engine records from a CaptureDevice until the speaker goes quiet.
type Engine struct {
	dev        CaptureDevice
	sampleRate int
	channels   int
	threshold  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithSampleRate(rate int) EngineOption { return func(e *Engine) { e.sampleRate = rate } }

func WithChannels(n int) EngineOption { return func(e *Engine) { e.channels = n } }

// WithThreshold sets the RMS amplitude below which a frame counts as silent.
func WithThreshold(rms int) EngineOption { return func(e *Engine) { e.threshold = rms } }

// NewEngine returns an engine capturing at 24kHz mono by default.
func NewEngine(dev CaptureDevice, opts ...EngineOption) *Engine {
	e := &Engine{
		dev:        dev,
		sampleRate: DefaultSampleRate,
		channels:   DefaultChannels,
		threshold:  DefaultSilenceThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) SampleRate() int { return e.sampleRate }

func (e *Engine) Channels() int { return e.channels }

// Capture records until silenceSpan of continuous quiet follows at least
// one frame, ceiling is reached, or ctx is cancelled. Durations are counted
// in captured samples, not wall time. Cancelling ctx closes the stream, which
// unblocks a pending Read. Any other device failure yields an empty buffer
// after the available devices have been logged.
func (e *Engine) Capture(ctx context.Context, silenceSpan, ceiling time.Duration) Buffer {
	out := Buffer{SampleRate: e.sampleRate, Channels: e.channels}
	if silenceSpan <= 0 {
		silenceSpan = DefaultSilenceSpan
	}
	frameLen := e.sampleRate / int(time.Second/FrameDuration)
	if frameLen <= 0 {
		return out
	}
	maxFrames := int(math.Ceil(float64(ceiling) / float64(FrameDuration)))
	silenceFrames := int(math.Ceil(float64(silenceSpan) / float64(FrameDuration)))

	stream, err := e.dev.OpenInput(e.sampleRate, e.channels, frameLen)
	if err != nil {
		e.logFailure("open", err)
		return out
	}
	var closeOnce sync.Once
	closeStream := func() { closeOnce.Do(func() { _ = stream.Close() }) }
	defer closeStream()
	// closing is the only way to release a Read blocked in the driver
	stopWatch := context.AfterFunc(ctx, closeStream)
	defer stopWatch()

	frame := make([]int16, frameLen*e.channels)
	samples := make([]int16, 0, min(maxFrames, 600)*len(frame))
	quiet := 0
	reason := "ceiling"
	for n := 0; n < maxFrames; n++ {
		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}
		if err := stream.Read(frame); err != nil {
			if ctx.Err() != nil {
				reason = "cancelled"
				break
			}
			if !errors.Is(err, ErrOverflow) {
				e.logFailure("read", err)
				return Buffer{SampleRate: e.sampleRate, Channels: e.channels}
			}
			logging.Warnw("audio: input overflow, continuing", "frame", n)
		}
		samples = append(samples, frame...)

		if RMS(frame) < float64(e.threshold) {
			quiet++
		} else {
			quiet = 0
		}
		if quiet >= silenceFrames {
			reason = "silence"
			break
		}
	}
	out.Samples = samples
	logging.Debugw("audio: capture finished", logging.CaptureFields(len(samples), int(out.Duration().Milliseconds()), reason)...)
	return out
}

func (e *Engine) logFailure(stage string, err error) {
	logging.Errorw("audio: capture failed", "stage", stage, "err", err, "sample_rate", e.sampleRate, "channels", e.channels)
	devs, derr := e.dev.Devices()
	if derr != nil {
		logging.Errorw("audio: could not enumerate devices", "err", derr)
		return
	}
	for _, d := range InputDevices(devs) {
		logging.Infow("audio: input device", "index", d.Index, "name", d.Name, "channels", d.MaxInputChannels, "default", d.DefaultInput)
	}
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq int64
	for _, s := range samples {
		v := int64(s)
		sumSq += v * v
	}
	return math.Sqrt(float64(sumSq) / float64(len(samples)))
}
