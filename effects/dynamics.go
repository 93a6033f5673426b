package effects

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph"
)

// =============================================================================
// Compressor
// =============================================================================

type compressorParams struct {
	ThresholdDB  float64 `json:"thresholdDb"`
	Ratio        float64 `json:"ratio"`
	AttackMs     float64 `json:"attackMs"`
	ReleaseMs    float64 `json:"releaseMs"`
	MakeupGainDB float64 `json:"makeupGainDb"`
}

// Compressor wraps the feed-forward compressor, one detector per
// channel (dual mono).
type Compressor struct {
	params  atomic.Pointer[compressorParams]
	applied *compressorParams

	comps [maxChannels]*dynamics.Compressor
}

// NewCompressor returns a gentle vocal-leveling setting.
func NewCompressor() *Compressor {
	c := &Compressor{}
	c.params.Store(&compressorParams{
		ThresholdDB: -18, Ratio: 3, AttackMs: 10, ReleaseMs: 120, MakeupGainDB: 0,
	})
	return c
}

func (c *Compressor) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range c.comps {
		comp, err := dynamics.NewCompressor(sampleRate)
		if err != nil {
			c.comps[ch] = nil
			continue
		}
		c.comps[ch] = comp
	}
	c.applied = nil
}

func (c *Compressor) ReleaseResources() {
	for ch := range c.comps {
		c.comps[ch] = nil
	}
}

func (c *Compressor) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := c.params.Load()
	if p != c.applied {
		for _, comp := range c.comps {
			if comp == nil {
				continue
			}
			comp.SetThreshold(p.ThresholdDB)
			comp.SetRatio(p.Ratio)
			comp.SetAttack(p.AttackMs)
			comp.SetRelease(p.ReleaseMs)
			comp.SetMakeupGain(p.MakeupGainDB)
		}
		c.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		if c.comps[ch] != nil {
			c.comps[ch].ProcessInPlace(samples)
		}
	})
}

func (c *Compressor) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (c *Compressor) EffectType() string                                 { return "Compressor" }
func (c *Compressor) NodeCategory() string                               { return "dynamics" }

func (c *Compressor) GetStateInformation() ([]byte, error) {
	return json.Marshal(c.params.Load())
}

func (c *Compressor) SetStateInformation(data []byte) error {
	p := *c.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("compressor state: %w", err)
	}
	if p.Ratio < 1 {
		return fmt.Errorf("compressor ratio out of range: %v", p.Ratio)
	}
	if p.AttackMs <= 0 || p.ReleaseMs <= 0 {
		return fmt.Errorf("compressor times must be positive")
	}
	c.params.Store(&p)
	return nil
}

// =============================================================================
// Gate
// =============================================================================

type gateParams struct {
	ThresholdDB float64 `json:"thresholdDb"`
	AttackMs    float64 `json:"attackMs"`
	HoldMs      float64 `json:"holdMs"`
	ReleaseMs   float64 `json:"releaseMs"`
	RangeDB     float64 `json:"rangeDb"`
}

// Gate wraps the noise gate, dual mono.
type Gate struct {
	params  atomic.Pointer[gateParams]
	applied *gateParams

	gates [maxChannels]*dynamics.Gate
}

// NewGate returns a stage-noise setting.
func NewGate() *Gate {
	g := &Gate{}
	g.params.Store(&gateParams{
		ThresholdDB: -50, AttackMs: 1, HoldMs: 20, ReleaseMs: 100, RangeDB: -80,
	})
	return g
}

func (g *Gate) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range g.gates {
		gate, err := dynamics.NewGate(sampleRate)
		if err != nil {
			g.gates[ch] = nil
			continue
		}
		g.gates[ch] = gate
	}
	g.applied = nil
}

func (g *Gate) ReleaseResources() {
	for ch := range g.gates {
		g.gates[ch] = nil
	}
}

func (g *Gate) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := g.params.Load()
	if p != g.applied {
		for _, gate := range g.gates {
			if gate == nil {
				continue
			}
			gate.SetThreshold(p.ThresholdDB)
			gate.SetAttack(p.AttackMs)
			gate.SetHold(p.HoldMs)
			gate.SetRelease(p.ReleaseMs)
			gate.SetRange(p.RangeDB)
		}
		g.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		if g.gates[ch] != nil {
			g.gates[ch].ProcessInPlace(samples)
		}
	})
}

func (g *Gate) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (g *Gate) EffectType() string                                 { return "Gate" }
func (g *Gate) NodeCategory() string                               { return "dynamics" }

func (g *Gate) GetStateInformation() ([]byte, error) {
	return json.Marshal(g.params.Load())
}

func (g *Gate) SetStateInformation(data []byte) error {
	p := *g.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("gate state: %w", err)
	}
	if p.AttackMs <= 0 || p.ReleaseMs <= 0 || p.HoldMs < 0 {
		return fmt.Errorf("gate times out of range")
	}
	g.params.Store(&p)
	return nil
}

// =============================================================================
// DeEsser
// =============================================================================

type deEsserParams struct {
	FrequencyHz float64 `json:"frequencyHz"`
	ThresholdDB float64 `json:"thresholdDb"`
	Ratio       float64 `json:"ratio"`
}

// DeEsser wraps the sibilance reducer, dual mono.
type DeEsser struct {
	params  atomic.Pointer[deEsserParams]
	applied *deEsserParams

	units [maxChannels]*dynamics.DeEsser
}

// NewDeEsser returns a vocal sibilance setting.
func NewDeEsser() *DeEsser {
	d := &DeEsser{}
	d.params.Store(&deEsserParams{FrequencyHz: 6000, ThresholdDB: -24, Ratio: 4})
	return d
}

func (d *DeEsser) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range d.units {
		unit, err := dynamics.NewDeEsser(sampleRate)
		if err != nil {
			d.units[ch] = nil
			continue
		}
		d.units[ch] = unit
	}
	d.applied = nil
}

func (d *DeEsser) ReleaseResources() {
	for ch := range d.units {
		d.units[ch] = nil
	}
}

func (d *DeEsser) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := d.params.Load()
	if p != d.applied {
		for _, unit := range d.units {
			if unit == nil {
				continue
			}
			unit.SetFrequency(p.FrequencyHz)
			unit.SetThreshold(p.ThresholdDB)
			unit.SetRatio(p.Ratio)
		}
		d.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		if d.units[ch] != nil {
			d.units[ch].ProcessInPlace(samples)
		}
	})
}

func (d *DeEsser) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (d *DeEsser) EffectType() string                                 { return "DeEsser" }
func (d *DeEsser) NodeCategory() string                               { return "dynamics" }

func (d *DeEsser) GetStateInformation() ([]byte, error) {
	return json.Marshal(d.params.Load())
}

func (d *DeEsser) SetStateInformation(data []byte) error {
	p := *d.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("deesser state: %w", err)
	}
	if p.FrequencyHz < 1000 || p.FrequencyHz > 16000 {
		return fmt.Errorf("deesser frequency out of range: %v", p.FrequencyHz)
	}
	if p.Ratio < 1 {
		return fmt.Errorf("deesser ratio out of range: %v", p.Ratio)
	}
	d.params.Store(&p)
	return nil
}
