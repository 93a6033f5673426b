package effects

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph"
)

type limiterParams struct {
	ThresholdDB float64 `json:"thresholdDb"`
	ReleaseMs   float64 `json:"releaseMs"`
}

// Limiter wraps the peak limiter, dual mono. Typically the last node
// before the hardware output.
type Limiter struct {
	params  atomic.Pointer[limiterParams]
	applied *limiterParams

	units [maxChannels]*dynamics.Limiter
}

// NewLimiter returns a safety ceiling just under full scale.
func NewLimiter() *Limiter {
	l := &Limiter{}
	l.params.Store(&limiterParams{ThresholdDB: -1, ReleaseMs: 50})
	return l
}

func (l *Limiter) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range l.units {
		unit, err := dynamics.NewLimiter(sampleRate)
		if err != nil {
			l.units[ch] = nil
			continue
		}
		l.units[ch] = unit
	}
	l.applied = nil
}

func (l *Limiter) ReleaseResources() {
	for ch := range l.units {
		l.units[ch] = nil
	}
}

func (l *Limiter) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := l.params.Load()
	if p != l.applied {
		for _, unit := range l.units {
			if unit == nil {
				continue
			}
			unit.SetThreshold(p.ThresholdDB)
			unit.SetRelease(p.ReleaseMs)
		}
		l.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		unit := l.units[ch]
		if unit == nil {
			return
		}
		for i := range samples {
			samples[i] = unit.ProcessSample(samples[i])
		}
	})
}

func (l *Limiter) IsBusesLayoutSupported(layout stagegraph.BusLayout) bool {
	return stereoLayout(layout)
}
func (l *Limiter) EffectType() string   { return "Limiter" }
func (l *Limiter) NodeCategory() string { return "dynamics" }

func (l *Limiter) GetStateInformation() ([]byte, error) {
	return json.Marshal(l.params.Load())
}

func (l *Limiter) SetStateInformation(data []byte) error {
	p := *l.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("limiter state: %w", err)
	}
	if p.ReleaseMs <= 0 {
		return fmt.Errorf("limiter release must be positive")
	}
	l.params.Store(&p)
	return nil
}
