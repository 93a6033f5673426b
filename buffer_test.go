package stagegraph

import "testing"

func TestBufferBasics(t *testing.T) {
	buf := NewBuffer(2, 8)
	if buf.NumChannels() != 2 || buf.NumFrames() != 8 {
		t.Fatalf("shape = %dx%d", buf.NumChannels(), buf.NumFrames())
	}

	buf.Channel(0)[3] = 0.5
	buf.Channel(1)[7] = -0.8

	if buf.Peak(0, 8) != 0.5 {
		t.Errorf("peak ch0 = %v", buf.Peak(0, 8))
	}
	if buf.Peak(1, 8) != 0.8 {
		t.Errorf("peak ch1 = %v", buf.Peak(1, 8))
	}
	if buf.Peak(1, 4) != 0 {
		t.Errorf("windowed peak = %v", buf.Peak(1, 4))
	}

	buf.ClearChannel(0)
	if buf.Peak(0, 8) != 0 {
		t.Error("ClearChannel left samples")
	}
	buf.Clear()
	if buf.Peak(1, 8) != 0 {
		t.Error("Clear left samples")
	}
}

func TestBufferNegativeDimensionsClamp(t *testing.T) {
	buf := NewBuffer(-1, -5)
	if buf.NumChannels() != 0 || buf.NumFrames() != 0 {
		t.Errorf("shape = %dx%d, want 0x0", buf.NumChannels(), buf.NumFrames())
	}
}

func TestBufferCopyAndAdd(t *testing.T) {
	src := NewBuffer(2, 4)
	for i := range src.Channel(0) {
		src.Channel(0)[i] = 1
		src.Channel(1)[i] = 2
	}

	dst := NewBuffer(1, 4)
	dst.CopyFrom(src) // only the shared channel
	if dst.Channel(0)[0] != 1 {
		t.Errorf("copied sample = %v", dst.Channel(0)[0])
	}

	dst.AddFrom(src, 1, 0, 4)
	if dst.Channel(0)[0] != 3 {
		t.Errorf("summed sample = %v", dst.Channel(0)[0])
	}

	// Frame count clamps to the shorter buffer.
	short := NewBuffer(1, 2)
	short.AddFrom(src, 0, 0, 100)
	if short.Channel(0)[1] != 1 {
		t.Errorf("clamped add = %v", short.Channel(0)[1])
	}
}
