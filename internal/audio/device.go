package audio

import (
	"context"
	"errors"
)

var (
	// ErrNoDevice is returned when the build has no audio backend or no
	// default device exists.
	ErrNoDevice = errors.New("no audio device available")
	// ErrOverflow marks a read that lost input samples. Capture keeps going.
	ErrOverflow = errors.New("input overflow")
)

// DeviceInfo describes one host audio device.
type DeviceInfo struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	DefaultInput      bool
	DefaultOutput     bool
}

// InputStream delivers fixed-size frames of interleaved 16-bit samples.
// Read fills buf completely or returns an error; an ErrOverflow error still
// leaves valid samples in buf.
type InputStream interface {
	Read(buf []int16) error
	Close() error
}

// CaptureDevice opens input streams on the host microphone.
type CaptureDevice interface {
	OpenInput(sampleRate, channels, framesPerBuffer int) (InputStream, error)
	Devices() ([]DeviceInfo, error)
}

// Player plays a complete 16-bit PCM buffer and returns once it has drained
// or ctx is done.
type Player interface {
	Play(ctx context.Context, buf Buffer) error
}

// InputDevices filters a device list down to those able to record.
func InputDevices(all []DeviceInfo) []DeviceInfo {
	var out []DeviceInfo
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			out = append(out, d)
		}
	}
	return out
}

// OutputDevices filters a device list down to those able to play.
func OutputDevices(all []DeviceInfo) []DeviceInfo {
	var out []DeviceInfo
	for _, d := range all {
		if d.MaxOutputChannels > 0 {
			out = append(out, d)
		}
	}
	return out
}
