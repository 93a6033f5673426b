package effects

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph"
)

type gainParams struct {
	GainDB float64 `json:"gainDb"`
}

// Gain is a smoothed level trim. The smoothing runs per sample toward
// the target so gain rides during a performance never click.
type Gain struct {
	params  atomic.Pointer[gainParams]
	current float64 // audio-thread-owned linear gain
}

// NewGain returns a unity gain.
func NewGain() *Gain {
	g := &Gain{current: 1.0}
	g.params.Store(&gainParams{GainDB: 0})
	return g
}

func (g *Gain) PrepareToPlay(sampleRate float64, blockSize int) {
	g.current = dbToLinear(g.params.Load().GainDB)
}

func (g *Gain) ReleaseResources() {}

func (g *Gain) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	target := dbToLinear(g.params.Load().GainDB)
	processChannels(buf, func(ch int, samples []float64) {
		gain := g.current
		for i := range samples {
			gain += 0.01 * (target - gain)
			samples[i] *= gain
		}
		if ch == 0 {
			g.current = gain
		}
	})
}

func (g *Gain) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (g *Gain) EffectType() string                                 { return "Gain" }
func (g *Gain) NodeCategory() string                               { return "utility" }

func (g *Gain) GetStateInformation() ([]byte, error) {
	return json.Marshal(g.params.Load())
}

func (g *Gain) SetStateInformation(data []byte) error {
	p := *g.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("gain state: %w", err)
	}
	if p.GainDB < -96 || p.GainDB > 24 {
		return fmt.Errorf("gain out of range: %v dB", p.GainDB)
	}
	g.params.Store(&p)
	return nil
}

// SetGainDB publishes a new target level.
func (g *Gain) SetGainDB(db float64) {
	g.params.Store(&gainParams{GainDB: db})
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
