// Package testutil holds small signal helpers shared by DSP-facing
// tests.
package testutil

import "math"

// Sine fills a slice with a sine wave at the given frequency, sample
// rate, and amplitude.
func Sine(n int, frequency, sampleRate, amplitude float64) []float64 {
	out := make([]float64, n)
	step := 2 * math.Pi * frequency / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(float64(i)*step)
	}
	return out
}

// Impulse returns a slice that is zero except for a single unit sample
// at index at.
func Impulse(n, at int) []float64 {
	out := make([]float64, n)
	if at >= 0 && at < n {
		out[at] = 1
	}
	return out
}

// Peak returns the absolute peak of a slice.
func Peak(s []float64) float64 {
	peak := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}
