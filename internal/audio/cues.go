package audio

import (
	"math"
	"time"
)

const (
	chimeToneLen   = 100 * time.Millisecond
	chimeGap       = 50 * time.Millisecond
	chimeAmplitude = 0.3
)

// StartChime is a short rising two-tone cue played before recording.
func StartChime(sampleRate, channels int) Buffer {
	return chime(sampleRate, channels, 800, 1000)
}

// EndChime is the falling counterpart played once recording stops.
func EndChime(sampleRate, channels int) Buffer {
	return chime(sampleRate, channels, 1000, 800)
}

func chime(sampleRate, channels int, freqs ...float64) Buffer {
	buf := Buffer{SampleRate: sampleRate, Channels: channels}
	toneFrames := int(int64(sampleRate) * int64(chimeToneLen) / int64(time.Second))
	gapFrames := int(int64(sampleRate) * int64(chimeGap) / int64(time.Second))
	fade := toneFrames / 10
	for i, f := range freqs {
		if i > 0 {
			buf.Samples = append(buf.Samples, make([]int16, gapFrames*channels)...)
		}
		for n := 0; n < toneFrames; n++ {
			env := 1.0
			switch {
			case n < fade:
				env = float64(n) / float64(fade)
			case n >= toneFrames-fade:
				env = float64(toneFrames-n) / float64(fade)
			}
			v := int16(math.Sin(2*math.Pi*f*float64(n)/float64(sampleRate)) * env * chimeAmplitude * math.MaxInt16)
			for c := 0; c < channels; c++ {
				buf.Samples = append(buf.Samples, v)
			}
		}
	}
	return buf
}
