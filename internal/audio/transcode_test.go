package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeHeaderLayout(t *testing.T) {
	for _, rate := range []int{8000, 16000, 24000, 44100, 48000} {
		for _, bits := range []int{8, 16, 24, 32} {
			raw := make([]byte, 960)
			out := SynthesizeHeader(raw, bits, rate, 1)

			require.Len(t, out, 44+len(raw))
			assert.Equal(t, "RIFF", string(out[0:4]))
			assert.Equal(t, uint32(36+len(raw)), binary.LittleEndian.Uint32(out[4:8]))
			assert.Equal(t, "WAVE", string(out[8:12]))
			assert.Equal(t, uint32(rate), binary.LittleEndian.Uint32(out[24:28]))
			assert.Equal(t, uint32(rate*bits/8), binary.LittleEndian.Uint32(out[28:32]))
			assert.Equal(t, uint16(bits), binary.LittleEndian.Uint16(out[34:36]))
			assert.Equal(t, uint32(len(raw)), binary.LittleEndian.Uint32(out[40:44]))
		}
	}
}

func TestMIMERoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16, 24, 32} {
		for _, rate := range []int{8000, 22050, 24000, 48000} {
			gotRate, gotBits := ParseMIME(FormatMIME(rate, bits))
			assert.Equal(t, rate, gotRate)
			assert.Equal(t, bits, gotBits)
		}
	}
}

func TestParseMIMEDefaults(t *testing.T) {
	cases := map[string][2]int{
		"":                                 {24000, 16},
		"audio/L16":                        {24000, 16},
		"audio/L24;rate=16000":             {16000, 24},
		"audio/Lxx;rate=abc":               {24000, 16},
		"audio/L16; codec=pcm; rate=22050": {22050, 16},
	}
	for in, want := range cases {
		rate, bits := ParseMIME(in)
		assert.Equal(t, want[0], rate, in)
		assert.Equal(t, want[1], bits, in)
	}
}

func TestContainerDecodesBack(t *testing.T) {
	buf := Buffer{Samples: []int16{1, -2, 300, -32768, 32767}, SampleRate: 16000, Channels: 1}
	info, samples, err := DecodeWAV(ToContainer(buf))
	require.NoError(t, err)
	assert.Equal(t, WAVInfo{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, info)
	assert.Equal(t, buf.Samples, samples)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, _, err := DecodeWAV([]byte("ID3\x03 not a wav"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestEncodeFallsBackToWAV(t *testing.T) {
	buf := Buffer{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}
	data, format, err := Encode(buf, FormatWAV)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, format)
	assert.Equal(t, "RIFF", string(data[:4]))

	data, format, err = Encode(buf, FormatOgg)
	require.NoError(t, err)
	if CompressionAvailable() {
		assert.Equal(t, FormatOgg, format)
		assert.Equal(t, "OggS", string(data[:4]))
	} else {
		assert.Equal(t, FormatWAV, format)
	}
}

func TestResample(t *testing.T) {
	in := make([]int16, 480)
	out := Resample(in, 1, 24000, 16000)
	assert.Len(t, out, 320)
	assert.Equal(t, in, Resample(in, 1, 16000, 16000))
}
