package stagegraph

import "math"

// Buffer is a planar multi-channel block of audio samples. One slice per
// channel, all the same length. It is the unit of exchange between the
// hardware callback, the graph, and every Processor.
//
// Buffers on the render path are allocated once when the render plan is
// built; ProcessBlock never allocates.
type Buffer struct {
	data   [][]float64
	frames int
}

// NewBuffer allocates a silent buffer with the given channel count and
// frame capacity. Negative values are clamped to zero.
func NewBuffer(channels, frames int) *Buffer {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}
	data := make([][]float64, channels)
	for i := range data {
		data[i] = make([]float64, frames)
	}
	return &Buffer{data: data, frames: frames}
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int { return len(b.data) }

// NumFrames returns the frame count.
func (b *Buffer) NumFrames() int { return b.frames }

// Channel returns the sample slice for one channel. The slice is shared,
// not copied.
func (b *Buffer) Channel(ch int) []float64 {
	return b.data[ch]
}

// Clear zeroes every sample.
func (b *Buffer) Clear() {
	for _, ch := range b.data {
		for i := range ch {
			ch[i] = 0
		}
	}
}

// ClearChannel zeroes one channel.
func (b *Buffer) ClearChannel(ch int) {
	s := b.data[ch]
	for i := range s {
		s[i] = 0
	}
}

// CopyFrom copies as many channels and frames as both buffers share.
func (b *Buffer) CopyFrom(src *Buffer) {
	nch := min(len(b.data), len(src.data))
	for ch := 0; ch < nch; ch++ {
		copy(b.data[ch], src.data[ch])
	}
}

// AddFrom mixes src channel srcCh into dst channel dstCh (sample-wise add).
func (b *Buffer) AddFrom(src *Buffer, srcCh, dstCh, frames int) {
	in := src.data[srcCh]
	out := b.data[dstCh]
	if frames > len(in) {
		frames = len(in)
	}
	if frames > len(out) {
		frames = len(out)
	}
	for i := 0; i < frames; i++ {
		out[i] += in[i]
	}
}

// Peak returns the absolute peak sample value of one channel over the
// first n frames.
func (b *Buffer) Peak(ch, n int) float64 {
	s := b.data[ch]
	if n > len(s) {
		n = len(s)
	}
	peak := 0.0
	for i := 0; i < n; i++ {
		if v := math.Abs(s[i]); v > peak {
			peak = v
		}
	}
	return peak
}
