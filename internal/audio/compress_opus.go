//go:build opus

package audio

import (
	"bytes"
	"fmt"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

const (
	opusBitrate = 64000
	opusFrameMs = 20
	// Ogg Opus granule positions always run at 48kHz.
	opusClockPerFrame = 48000 * opusFrameMs / 1000
	maxOpusPacket     = 4000
)

// Compress encodes buf as Ogg Opus at 64kbps. Rates Opus does not accept
// natively are resampled to 24kHz first.
func Compress(buf Buffer) ([]byte, string, error) {
	switch buf.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		buf = Buffer{
			Samples:    Resample(buf.Samples, buf.Channels, buf.SampleRate, DefaultSampleRate),
			SampleRate: DefaultSampleRate,
			Channels:   buf.Channels,
		}
	}
	enc, err := opus.NewEncoder(buf.SampleRate, buf.Channels, opus.AppVoIP)
	if err != nil {
		return nil, "", fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, "", fmt.Errorf("opus bitrate: %w", err)
	}

	var out bytes.Buffer
	w, err := oggwriter.NewWith(&out, uint32(buf.SampleRate), uint16(buf.Channels))
	if err != nil {
		return nil, "", fmt.Errorf("ogg writer: %w", err)
	}

	frameLen := buf.SampleRate * opusFrameMs / 1000 * buf.Channels
	pcm := make([]int16, frameLen)
	packet := make([]byte, maxOpusPacket)
	var seq uint16
	var ts uint32
	for off := 0; off < len(buf.Samples); off += frameLen {
		n := copy(pcm, buf.Samples[off:])
		clear(pcm[n:])
		size, err := enc.Encode(pcm, packet)
		if err != nil {
			w.Close()
			return nil, "", fmt.Errorf("opus encode: %w", err)
		}
		payload := make([]byte, size)
		copy(payload, packet[:size])
		ts += opusClockPerFrame
		if err := w.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           1,
			},
			Payload: payload,
		}); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("ogg write: %w", err)
		}
		seq++
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("ogg close: %w", err)
	}
	return out.Bytes(), FormatOgg, nil
}

// CompressionAvailable reports whether Compress produces Ogg Opus.
func CompressionAvailable() bool { return true }
