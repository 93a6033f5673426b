package effects

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	dspfx "github.com/cwbudde/algo-dsp/dsp/effects"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph"
)

type delayParams struct {
	TimeSeconds float64 `json:"timeSeconds"`
	Feedback    float64 `json:"feedback"`
	Mix         float64 `json:"mix"`
}

// Delay is a feedback delay, one line per channel. Changing the delay
// time may resize the line, so time edits are the one parameter change
// that can briefly allocate on the render path.
type Delay struct {
	params  atomic.Pointer[delayParams]
	applied *delayParams // audio-thread-owned

	lines [maxChannels]*dspfx.Delay
}

// NewDelay returns a delay at the library defaults.
func NewDelay() *Delay {
	d := &Delay{}
	d.params.Store(&delayParams{TimeSeconds: 0.25, Feedback: 0.3, Mix: 0.35})
	return d
}

func (d *Delay) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range d.lines {
		line, err := dspfx.NewDelay(sampleRate)
		if err != nil {
			d.lines[ch] = nil
			continue
		}
		d.lines[ch] = line
	}
	d.applied = nil
}

func (d *Delay) ReleaseResources() {
	for ch := range d.lines {
		d.lines[ch] = nil
	}
}

func (d *Delay) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := d.params.Load()
	if p != d.applied {
		for _, line := range d.lines {
			if line == nil {
				continue
			}
			line.SetTime(p.TimeSeconds)
			line.SetFeedback(p.Feedback)
			line.SetMix(p.Mix)
		}
		d.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		if d.lines[ch] != nil {
			d.lines[ch].ProcessInPlace(samples)
		}
	})
}

func (d *Delay) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (d *Delay) EffectType() string                                 { return "Delay" }
func (d *Delay) NodeCategory() string                               { return "time" }

func (d *Delay) GetStateInformation() ([]byte, error) {
	return json.Marshal(d.params.Load())
}

func (d *Delay) SetStateInformation(data []byte) error {
	p := *d.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("delay state: %w", err)
	}
	if p.TimeSeconds <= 0 || p.TimeSeconds > 10 {
		return fmt.Errorf("delay time out of range: %v s", p.TimeSeconds)
	}
	if p.Feedback < 0 || p.Feedback > 0.99 {
		return fmt.Errorf("delay feedback out of range: %v", p.Feedback)
	}
	if p.Mix < 0 || p.Mix > 1 {
		return fmt.Errorf("delay mix out of range: %v", p.Mix)
	}
	d.params.Store(&p)
	return nil
}
