package stagegraph

import (
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
)

// maxMeterChannels bounds the lock-free peak meter arrays.
const maxMeterChannels = 32

// gainSmoothingCoeff drives the one-pole fade used when the hardware
// input or output node is bypassed, avoiding clicks on the live signal.
const gainSmoothingCoeff = 0.05

// gainEpsilon snaps the smoothed gain to its target once the fade is
// inaudible.
const gainEpsilon = 1e-4

// feed mixes one channel of an upstream node's output into one channel of
// a step's input buffer.
type feed struct {
	src   *Buffer
	srcCh int
	dstCh int
}

// renderStep is one node's slot in the precomputed render order. Buffers
// are allocated at plan build time; the audio thread only reads and
// writes them.
type renderStep struct {
	node  *Node
	proc  Processor
	role  ioRole
	in    *Buffer
	out   *Buffer
	feeds []feed
}

// renderPlan is an immutable snapshot of the graph topology compiled into
// a flat step list in topological order. The control thread builds a new
// plan after every structural mutation and publishes it atomically; the
// audio thread loads whichever plan is current at block start and runs it
// without locks.
type renderPlan struct {
	steps     []renderStep
	outputBuf *Buffer
	inputNode *Node
	outNode   *Node
	frames    int
}

// rebuildPlanLocked compiles the current topology into a fresh plan and
// publishes it. Called with the graph mutex held after every mutation.
func (g *Graph) rebuildPlanLocked() {
	if !g.prepared.Load() {
		g.plan.Store(nil)
		return
	}

	io := g.io.Load()
	order := g.topoOrderLocked()

	plan := &renderPlan{
		steps:     make([]renderStep, 0, len(order)),
		outputBuf: NewBuffer(g.numHWOut, g.blockSize),
		inputNode: io.input,
		outNode:   io.output,
		frames:    g.blockSize,
	}

	outBufs := make(map[uuid.UUID]*Buffer, len(order))
	for _, id := range order {
		node := g.nodes[id]

		step := renderStep{node: node, proc: node.processor}
		switch node.typeTag {
		case TypeTagHardwareInput:
			step.role = roleInput
		case TypeTagHardwareOutput:
			step.role = roleOutput
		case TypeTagPlayback:
			step.role = rolePlayback
		default:
			step.role = roleNone
		}

		step.in = NewBuffer(node.layout.Inputs, g.blockSize)
		if step.role == roleOutput {
			step.out = plan.outputBuf
		} else {
			step.out = NewBuffer(node.layout.Outputs, g.blockSize)
		}
		outBufs[id] = step.out

		for _, c := range g.connections {
			if c.DestNode != id {
				continue
			}
			src, ok := outBufs[c.SourceNode]
			if !ok {
				// Upstream node sorts later only if the edge list is
				// inconsistent; the cycle check prevents this.
				continue
			}
			step.feeds = append(step.feeds, feed{src: src, srcCh: c.SourceChannel, dstCh: c.DestChannel})
		}

		plan.steps = append(plan.steps, step)
	}

	g.plan.Store(plan)
}

// topoOrderLocked returns every node ID in dependency order. Ties break
// by insertion order so positional snapshot indices stay stable. The
// cycle check at AddConnection guarantees the sort always completes.
func (g *Graph) topoOrderLocked() []uuid.UUID {
	indegree := make(map[uuid.UUID]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = 0
	}
	for _, c := range g.connections {
		indegree[c.DestNode]++
	}

	sorted := make([]uuid.UUID, 0, len(g.order))
	ready := make([]uuid.UUID, 0, len(g.order))
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)
		for _, c := range g.connections {
			if c.SourceNode != id {
				continue
			}
			indegree[c.DestNode]--
			if indegree[c.DestNode] == 0 {
				ready = append(ready, c.DestNode)
			}
		}
	}
	return sorted
}

// =============================================================================
// Audio thread
// =============================================================================

// ProcessBlock renders one hardware block in place. buf carries the
// hardware input channels on entry and must carry the output channels on
// return; decoupled channel counts are handled by the plan's output
// buffer. midiMessages is forwarded to every user effect.
//
// This is the only method the audio thread calls. It performs no
// allocation, takes no locks, and logs nothing. If the graph is
// unprepared or suspended the block is silenced and nothing else runs.
func (g *Graph) ProcessBlock(buf *Buffer, midiMessages []midi.Message) {
	plan := g.plan.Load()
	if plan == nil || !g.prepared.Load() || g.suspended.Load() {
		buf.Clear()
		return
	}

	frames := buf.NumFrames()
	if frames > plan.frames {
		frames = plan.frames
	}

	// Input bypass fade runs on the raw hardware samples before any node
	// sees them.
	g.inGain = applyRamp(buf, buf.NumChannels(), frames, g.inGain, targetGain(plan.inputNode))
	g.meterPeaks(&g.inputPeaks, buf, frames)

	for i := range plan.steps {
		step := &plan.steps[i]

		// Gather upstream contributions.
		step.in.Clear()
		for _, f := range step.feeds {
			step.in.AddFrom(f.src, f.srcCh, f.dstCh, frames)
		}

		switch step.role {
		case roleInput:
			// Source node: hardware samples become its outputs.
			step.out.CopyFrom(buf)
		case rolePlayback:
			if step.node.IsBypassed() {
				step.out.Clear()
			} else {
				step.proc.ProcessBlock(step.out, nil)
			}
		case roleOutput:
			// Sink: feeds were gathered straight into the plan's output
			// buffer via step.in; copy them over.
			step.out.CopyFrom(step.in)
		default:
			step.out.CopyFrom(step.in)
			if !step.node.IsBypassed() {
				step.proc.ProcessBlock(step.out, midiMessages)
			}
		}
	}

	// Replace hardware samples with the rendered output.
	buf.Clear()
	buf.CopyFrom(plan.outputBuf)

	g.outGain = applyRamp(buf, buf.NumChannels(), frames, g.outGain, targetGain(plan.outNode))
	g.meterPeaks(&g.outputPeaks, buf, frames)

	// Post-restart flush: stale tails keep draining through the nodes,
	// but the hardware hears silence until the countdown expires.
	if remaining := g.flushCountdown.Load(); remaining > 0 {
		buf.Clear()
		g.flushCountdown.Store(remaining - 1)
	}
}

func targetGain(n *Node) float64 {
	if n != nil && n.IsBypassed() {
		return 0.0
	}
	return 1.0
}

// applyRamp applies a one-pole exponential fade toward target across the
// block and returns the updated gain state. At unity with a unity target
// it is a no-op.
func applyRamp(buf *Buffer, channels, frames int, gain, target float64) float64 {
	if gain == target && target == 1.0 {
		return gain
	}
	if channels > buf.NumChannels() {
		channels = buf.NumChannels()
	}
	for i := 0; i < frames; i++ {
		gain += gainSmoothingCoeff * (target - gain)
		if math.Abs(gain-target) < gainEpsilon {
			gain = target
		}
		for ch := 0; ch < channels; ch++ {
			buf.Channel(ch)[i] *= gain
		}
	}
	return gain
}

// meterPeaks publishes per-channel absolute peaks for UI meters. Written
// on the audio thread with atomic stores only.
func (g *Graph) meterPeaks(dst *[maxMeterChannels]atomic.Uint64, buf *Buffer, frames int) {
	nch := buf.NumChannels()
	if nch > maxMeterChannels {
		nch = maxMeterChannels
	}
	for ch := 0; ch < nch; ch++ {
		dst[ch].Store(math.Float64bits(buf.Peak(ch, frames)))
	}
}

// InputPeak returns the most recent absolute peak for one hardware input
// channel.
func (g *Graph) InputPeak(ch int) float64 {
	if ch < 0 || ch >= maxMeterChannels {
		return 0
	}
	return math.Float64frombits(g.inputPeaks[ch].Load())
}

// OutputPeak returns the most recent absolute peak for one hardware
// output channel.
func (g *Graph) OutputPeak(ch int) float64 {
	if ch < 0 || ch >= maxMeterChannels {
		return 0
	}
	return math.Float64frombits(g.outputPeaks[ch].Load())
}
