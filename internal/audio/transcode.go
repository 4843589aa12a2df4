package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMIMEBits = 16
	DefaultMIMERate = 24000

	wavHeaderSize = 44
)

// Buffer is captured 16-bit PCM. It only grows while a capture is running and
// is not modified once handed on.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Empty reports whether nothing was captured.
func (b Buffer) Empty() bool { return len(b.Samples) == 0 }

// Duration derives the playback length from the sample count.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// PCM returns the samples as little-endian bytes.
func (b Buffer) PCM() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToContainer wraps buf as a 16-bit PCM WAV file.
func ToContainer(buf Buffer) []byte {
	return SynthesizeHeader(buf.PCM(), 16, buf.SampleRate, buf.Channels)
}

// SynthesizeHeader prepends a 44-byte RIFF/WAVE header to raw little-endian
// samples, for backends that return headerless PCM.
func SynthesizeHeader(raw []byte, bitsPerSample, sampleRate, channels int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataLen := uint32(len(raw))

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(raw)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(raw)
	return buf.Bytes()
}

// ParseMIME reads the sample rate and bit depth from a descriptor such as
// "audio/L16;rate=24000". Missing or malformed parameters fall back to the
// defaults; it never fails.
func ParseMIME(mime string) (rate, bits int) {
	rate, bits = DefaultMIMERate, DefaultMIMEBits
	for _, param := range strings.Split(mime, ";") {
		param = strings.TrimSpace(param)
		switch {
		case strings.HasPrefix(strings.ToLower(param), "rate="):
			if v, err := strconv.Atoi(strings.TrimSpace(param[len("rate="):])); err == nil && v > 0 {
				rate = v
			}
		case strings.HasPrefix(param, "audio/L"):
			if v, err := strconv.Atoi(param[len("audio/L"):]); err == nil && v > 0 {
				bits = v
			}
		}
	}
	return rate, bits
}

// FormatMIME is the inverse of ParseMIME.
func FormatMIME(rate, bits int) string {
	return fmt.Sprintf("audio/L%d;rate=%d", bits, rate)
}

// WAVInfo is the format block of a parsed WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// DecodeWAV finds the fmt and data chunks of a PCM WAV file. Unknown chunks
// are skipped. Only 16-bit PCM is returned as samples.
func DecodeWAV(b []byte) (WAVInfo, []int16, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return WAVInfo{}, nil, ErrNotWAV
	}
	var info WAVInfo
	var haveFmt bool
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(b) || size < 0 {
			// streamed WAVs often carry a bogus data size; take what is there
			end = len(b)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return WAVInfo{}, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			info.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVInfo{}, nil, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			if info.BitsPerSample != 16 {
				return info, nil, fmt.Errorf("unsupported bit depth %d", info.BitsPerSample)
			}
			data := b[body:end]
			samples := make([]int16, len(data)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
			}
			return info, samples, nil
		}
		pos = end + size%2
	}
	return WAVInfo{}, nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// Resample converts mono or interleaved samples between rates by linear
// interpolation. Good enough for speech going to a recognizer.
func Resample(in []int16, channels, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	frames := len(in) / channels
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * float64(from) / float64(to)
		j := int(srcPos)
		frac := srcPos - float64(j)
		for c := 0; c < channels; c++ {
			a := float64(in[j*channels+c])
			bv := a
			if j+1 < frames {
				bv = float64(in[(j+1)*channels+c])
			}
			out[i*channels+c] = int16(a + (bv-a)*frac)
		}
	}
	return out
}

// Container format names as used in file extensions and upload names.
const (
	FormatWAV = "wav"
	FormatOgg = "ogg"
)

// Encode turns buf into the requested container. Ogg falls back to WAV when
// no encoder is built in; the returned format is what was produced.
func Encode(buf Buffer, format string) ([]byte, string, error) {
	if format == FormatOgg {
		return Compress(buf)
	}
	return ToContainer(buf), FormatWAV, nil
}
