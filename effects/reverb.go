package effects

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph"
)

type reverbParams struct {
	Wet      float64 `json:"wet"`
	Dry      float64 `json:"dry"`
	RoomSize float64 `json:"roomSize"`
	Damp     float64 `json:"damp"`
}

// Reverb is a Freeverb-style room, one instance per channel.
type Reverb struct {
	params  atomic.Pointer[reverbParams]
	applied *reverbParams

	rooms [maxChannels]*reverb.Reverb
}

// NewReverb returns a reverb at a moderate room setting.
func NewReverb() *Reverb {
	r := &Reverb{}
	r.params.Store(&reverbParams{Wet: 0.3, Dry: 0.7, RoomSize: 0.5, Damp: 0.5})
	return r
}

func (r *Reverb) PrepareToPlay(sampleRate float64, blockSize int) {
	for ch := range r.rooms {
		r.rooms[ch] = reverb.NewReverb()
	}
	r.applied = nil
}

func (r *Reverb) ReleaseResources() {
	for ch := range r.rooms {
		r.rooms[ch] = nil
	}
}

func (r *Reverb) ProcessBlock(buf *stagegraph.Buffer, _ []midi.Message) {
	p := r.params.Load()
	if p != r.applied {
		for _, room := range r.rooms {
			if room == nil {
				continue
			}
			room.SetWet(p.Wet)
			room.SetDry(p.Dry)
			room.SetRoomSize(p.RoomSize)
			room.SetDamp(p.Damp)
		}
		r.applied = p
	}

	processChannels(buf, func(ch int, samples []float64) {
		if r.rooms[ch] != nil {
			r.rooms[ch].ProcessInPlace(samples)
		}
	})
}

func (r *Reverb) IsBusesLayoutSupported(l stagegraph.BusLayout) bool { return stereoLayout(l) }
func (r *Reverb) EffectType() string                                 { return "Reverb" }
func (r *Reverb) NodeCategory() string                               { return "space" }

func (r *Reverb) GetStateInformation() ([]byte, error) {
	return json.Marshal(r.params.Load())
}

func (r *Reverb) SetStateInformation(data []byte) error {
	p := *r.params.Load()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("reverb state: %w", err)
	}
	for name, v := range map[string]float64{
		"wet": p.Wet, "dry": p.Dry, "roomSize": p.RoomSize, "damp": p.Damp,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("reverb %s out of range: %v", name, v)
		}
	}
	r.params.Store(&p)
	return nil
}
