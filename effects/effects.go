// Package effects ships the built-in effect units and registers them
// with the graph's factory table at init. Each unit wraps a mono DSP
// processor per channel and keeps its parameters in an atomically
// swapped snapshot: the control thread publishes a new snapshot on every
// edit, and the audio thread applies pending values once at block start,
// so parameter reads are torn-free without locks.
//
// State blobs are JSON documents of the parameter snapshot, so presets
// stay human-readable and forward-compatible with added fields.
package effects

import (
	"github.com/onstage/stagegraph"
)

func init() {
	stagegraph.Register("Gain", func() stagegraph.Processor { return NewGain() })
	stagegraph.Register("Delay", func() stagegraph.Processor { return NewDelay() })
	stagegraph.Register("Reverb", func() stagegraph.Processor { return NewReverb() })
	stagegraph.Register("Compressor", func() stagegraph.Processor { return NewCompressor() })
	stagegraph.Register("Gate", func() stagegraph.Processor { return NewGate() })
	stagegraph.Register("DeEsser", func() stagegraph.Processor { return NewDeEsser() })
	stagegraph.Register("Limiter", func() stagegraph.Processor { return NewLimiter() })
}

// maxChannels is the widest layout any built-in effect supports.
const maxChannels = 2

// stereoLayout reports whether a layout is the symmetric mono or stereo
// shape the built-in effects run at.
func stereoLayout(l stagegraph.BusLayout) bool {
	return l.Inputs == l.Outputs && l.Inputs >= 1 && l.Inputs <= maxChannels
}

// processChannels runs fn over each channel slice the effect handles.
func processChannels(buf *stagegraph.Buffer, fn func(ch int, samples []float64)) {
	n := buf.NumChannels()
	if n > maxChannels {
		n = maxChannels
	}
	for ch := 0; ch < n; ch++ {
		fn(ch, buf.Channel(ch))
	}
}
