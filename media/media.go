// Package media defines the media-player contract the graph's playback
// node pulls from. The host application supplies a concrete player (file
// decoder, streaming client); this package only ships the silent default
// and a test tone.
package media

import "math"

// Player is pulled once per audio block by the graph's playback node.
// ReadFrames fills the left and right slices with up to len(left) frames
// and returns the number of frames written; the caller zeroes the
// remainder. It runs on the audio thread and must not allocate or block.
type Player interface {
	ReadFrames(left, right []float64) int
	IsPlaying() bool
}

// NullPlayer produces silence. It is the default when no media player is
// supplied at prepare time.
type NullPlayer struct{}

func (NullPlayer) ReadFrames(left, right []float64) int { return 0 }

func (NullPlayer) IsPlaying() bool { return false }

// TonePlayer renders a steady sine tone. Handy for demos and wiring
// checks where real media decoding is out of scope.
type TonePlayer struct {
	Frequency  float64
	SampleRate float64
	Amplitude  float64

	phase float64
}

// NewTonePlayer returns a tone player at the given frequency and sample
// rate with a modest amplitude.
func NewTonePlayer(frequency, sampleRate float64) *TonePlayer {
	return &TonePlayer{
		Frequency:  frequency,
		SampleRate: sampleRate,
		Amplitude:  0.25,
	}
}

func (t *TonePlayer) ReadFrames(left, right []float64) int {
	if t.SampleRate <= 0 {
		return 0
	}
	step := 2 * math.Pi * t.Frequency / t.SampleRate
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		v := t.Amplitude * math.Sin(t.phase)
		left[i] = v
		right[i] = v
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return n
}

func (t *TonePlayer) IsPlaying() bool { return true }
