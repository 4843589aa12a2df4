//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const playbackFrames = 960

// System wraps an initialized PortAudio library. Close terminates it.
type System struct {
	once sync.Once
}

// OpenSystem initializes PortAudio.
func OpenSystem() (*System, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &System{}, nil
}

func (s *System) Close() error {
	var err error
	s.once.Do(func() { err = portaudio.Terminate() })
	return err
}

type paInput struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenInput opens the default input device with a blocking read buffer of
// framesPerBuffer frames.
func (s *System) OpenInput(sampleRate, channels, framesPerBuffer int) (InputStream, error) {
	in := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, in)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &paInput{stream: stream, buf: in}, nil
}

func (p *paInput) Read(buf []int16) error {
	err := p.stream.Read()
	copy(buf, p.buf)
	if errors.Is(err, portaudio.InputOverflowed) {
		return ErrOverflow
	}
	return err
}

func (p *paInput) Close() error {
	_ = p.stream.Stop()
	return p.stream.Close()
}

// Devices enumerates host devices, marking the defaults.
func (s *System) Devices() ([]DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	var defIn, defOut string
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		defIn = d.Name
	}
	if d, err := portaudio.DefaultOutputDevice(); err == nil {
		defOut = d.Name
	}
	out := make([]DeviceInfo, 0, len(devs))
	for i, d := range devs {
		info := DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      d.Name == defIn,
			DefaultOutput:     d.Name == defOut,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// Play writes buf to the default output device in fixed chunks, padding the
// tail with silence.
func (s *System) Play(ctx context.Context, buf Buffer) error {
	out := make([]int16, playbackFrames*buf.Channels)
	stream, err := portaudio.OpenDefaultStream(0, buf.Channels, float64(buf.SampleRate), playbackFrames, out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(buf.Samples); off += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, buf.Samples[off:])
		clear(out[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}
