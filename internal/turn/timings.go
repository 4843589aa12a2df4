package turn

import (
	"fmt"
	"strings"
	"time"
)

// Phase names, in the order a turn records them.
const (
	PhaseTTSGen   = "tts_gen"
	PhaseTTSPlay  = "tts_play"
	PhaseTTSTotal = "tts_total"
	PhaseRecord   = "record"
	PhaseSTT      = "stt"
	PhaseTotal    = "total"
)

// Timings keeps phase durations in insertion order.
type Timings struct {
	order []string
	vals  map[string]time.Duration
}

// Set records d for phase, keeping the phase's first position.
func (t *Timings) Set(phase string, d time.Duration) {
	if t.vals == nil {
		t.vals = make(map[string]time.Duration)
	}
	if _, ok := t.vals[phase]; !ok {
		t.order = append(t.order, phase)
	}
	t.vals[phase] = d
}

func (t *Timings) Get(phase string) (time.Duration, bool) {
	d, ok := t.vals[phase]
	return d, ok
}

// Phases returns the recorded phase names in order.
func (t *Timings) Phases() []string { return append([]string(nil), t.order...) }

// Total sums the top-level phases; sub-phases of tts_total are excluded.
func (t *Timings) Total() time.Duration {
	var sum time.Duration
	for _, p := range []string{PhaseTTSTotal, PhaseRecord, PhaseSTT} {
		sum += t.vals[p]
	}
	return sum
}

// String renders "tts_gen 1.0s, tts_play 2.3s, ..." in insertion order.
func (t *Timings) String() string {
	parts := make([]string, 0, len(t.order))
	for _, p := range t.order {
		parts = append(parts, fmt.Sprintf("%s %.1fs", p, t.vals[p].Seconds()))
	}
	return strings.Join(parts, ", ")
}

// Summary is String followed by the total.
func (t *Timings) Summary() string {
	s := t.String()
	total := fmt.Sprintf("%s %.1fs", PhaseTotal, t.Total().Seconds())
	if s == "" {
		return total
	}
	return s + ", " + total
}
