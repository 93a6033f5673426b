package stagegraph

import (
	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph/media"
)

// The three permanent processors are owned by the graph and never go
// through the factory registry. Their real work happens in the render
// plan, which routes hardware and playback samples around them; the
// processor methods exist so permanent nodes satisfy the same node table
// entry shape as user effects.

type hwInputProcessor struct{}

func (p *hwInputProcessor) PrepareToPlay(float64, int)              {}
func (p *hwInputProcessor) ReleaseResources()                       {}
func (p *hwInputProcessor) ProcessBlock(*Buffer, []midi.Message)    {}
func (p *hwInputProcessor) IsBusesLayoutSupported(l BusLayout) bool { return l.Inputs == 0 }
func (p *hwInputProcessor) EffectType() string                      { return TypeTagHardwareInput }
func (p *hwInputProcessor) NodeCategory() string                    { return "io" }
func (p *hwInputProcessor) GetStateInformation() ([]byte, error)    { return nil, nil }
func (p *hwInputProcessor) SetStateInformation([]byte) error        { return nil }

type hwOutputProcessor struct{}

func (p *hwOutputProcessor) PrepareToPlay(float64, int)              {}
func (p *hwOutputProcessor) ReleaseResources()                       {}
func (p *hwOutputProcessor) ProcessBlock(*Buffer, []midi.Message)    {}
func (p *hwOutputProcessor) IsBusesLayoutSupported(l BusLayout) bool { return l.Outputs == 0 }
func (p *hwOutputProcessor) EffectType() string                      { return TypeTagHardwareOutput }
func (p *hwOutputProcessor) NodeCategory() string                    { return "io" }
func (p *hwOutputProcessor) GetStateInformation() ([]byte, error)    { return nil, nil }
func (p *hwOutputProcessor) SetStateInformation([]byte) error        { return nil }

// playbackProcessor pulls from the media player into its stereo output
// buffer. The player contract guarantees ReadFrames neither allocates
// nor blocks.
type playbackProcessor struct {
	player media.Player
}

func (p *playbackProcessor) PrepareToPlay(float64, int) {}
func (p *playbackProcessor) ReleaseResources()          {}

func (p *playbackProcessor) ProcessBlock(buf *Buffer, _ []midi.Message) {
	if buf.NumChannels() < 2 {
		return
	}
	left, right := buf.Channel(0), buf.Channel(1)
	n := 0
	if p.player != nil && p.player.IsPlaying() {
		n = p.player.ReadFrames(left, right)
	}
	for i := n; i < len(left); i++ {
		left[i] = 0
		right[i] = 0
	}
}

func (p *playbackProcessor) IsBusesLayoutSupported(l BusLayout) bool {
	return l.Inputs == 0 && l.Outputs == 2
}
func (p *playbackProcessor) EffectType() string                   { return TypeTagPlayback }
func (p *playbackProcessor) NodeCategory() string                 { return "io" }
func (p *playbackProcessor) GetStateInformation() ([]byte, error) { return nil, nil }
func (p *playbackProcessor) SetStateInformation([]byte) error     { return nil }

// =============================================================================
// Permanent node rebuild with wire preservation
// =============================================================================

// ioRole identifies a permanent endpoint when saving wires across a
// rebuild, since the node IDs change every time.
type ioRole int

const (
	roleNone ioRole = iota
	roleInput
	roleOutput
	rolePlayback
)

// endpointRef is one end of a saved wire: either a permanent role plus
// channel, or a surviving user node ID plus channel.
type endpointRef struct {
	role    ioRole
	id      uuid.UUID
	channel int
}

type savedWire struct {
	src endpointRef
	dst endpointRef
}

// rebuildIONodesLocked tears down any existing permanent nodes and
// creates fresh ones sized to the current hardware counts. Wires touching
// a permanent node survive the rebuild keyed by (role, channel); wires
// whose channel exceeds the new counts are dropped silently. Positions of
// previous permanent nodes carry over.
func (g *Graph) rebuildIONodesLocked() {
	old := g.io.Load()

	inX, inY := defaultInputX, defaultInputY
	outX, outY := defaultOutputX, defaultOutputY
	pbX, pbY := defaultPlaybackX, defaultPlaybackY
	inByp, outByp, pbByp := false, false, false

	var saved []savedWire
	if old != nil {
		inX, inY = old.input.x, old.input.y
		outX, outY = old.output.x, old.output.y
		pbX, pbY = old.playback.x, old.playback.y
		inByp = old.input.IsBypassed()
		outByp = old.output.IsBypassed()
		pbByp = old.playback.IsBypassed()

		saved = g.saveIOWiresLocked(old)

		g.removeFromTableLocked(old.input.id)
		g.removeFromTableLocked(old.output.id)
		g.removeFromTableLocked(old.playback.id)
	}

	input := newNode(TypeTagHardwareInput, &hwInputProcessor{},
		BusLayout{Inputs: 0, Outputs: g.numHWIn}, inX, inY)
	output := newNode(TypeTagHardwareOutput, &hwOutputProcessor{},
		BusLayout{Inputs: g.numHWOut, Outputs: 0}, outX, outY)
	playback := newNode(TypeTagPlayback,
		&playbackProcessor{player: g.player},
		BusLayout{Inputs: 0, Outputs: 2}, pbX, pbY)

	input.SetBypassed(inByp)
	output.SetBypassed(outByp)
	playback.SetBypassed(pbByp)

	fresh := &permanentNodes{input: input, output: output, playback: playback}
	for _, n := range []*Node{input, output, playback} {
		g.nodes[n.id] = n
		g.order = append(g.order, n.id)
	}
	g.io.Store(fresh)

	g.restoreIOWiresLocked(fresh, saved)
	metricIORebuilds.Inc()
}

// saveIOWiresLocked records every connection touching a permanent node as
// role-relative endpoints and removes those connections from the list.
func (g *Graph) saveIOWiresLocked(old *permanentNodes) []savedWire {
	roleOf := func(id uuid.UUID) ioRole {
		switch id {
		case old.input.id:
			return roleInput
		case old.output.id:
			return roleOutput
		case old.playback.id:
			return rolePlayback
		}
		return roleNone
	}

	var saved []savedWire
	kept := g.connections[:0]
	for _, c := range g.connections {
		srcRole, dstRole := roleOf(c.SourceNode), roleOf(c.DestNode)
		if srcRole == roleNone && dstRole == roleNone {
			kept = append(kept, c)
			continue
		}
		saved = append(saved, savedWire{
			src: endpointRef{role: srcRole, id: c.SourceNode, channel: c.SourceChannel},
			dst: endpointRef{role: dstRole, id: c.DestNode, channel: c.DestChannel},
		})
	}
	g.connections = kept
	return saved
}

// restoreIOWiresLocked replays saved wires against the fresh permanent
// nodes. Endpoints that no longer resolve, or channels out of range for
// the new hardware shape, drop the wire.
func (g *Graph) restoreIOWiresLocked(fresh *permanentNodes, saved []savedWire) {
	resolve := func(ref endpointRef) (*Node, bool) {
		switch ref.role {
		case roleInput:
			return fresh.input, true
		case roleOutput:
			return fresh.output, true
		case rolePlayback:
			return fresh.playback, true
		}
		n, ok := g.nodes[ref.id]
		return n, ok
	}

	for _, w := range saved {
		src, okSrc := resolve(w.src)
		dst, okDst := resolve(w.dst)
		if !okSrc || !okDst ||
			w.src.channel < 0 || w.src.channel >= src.layout.Outputs ||
			w.dst.channel < 0 || w.dst.channel >= dst.layout.Inputs {
			metricDroppedWires.Inc()
			g.log.Debug().Msg("dropped wire during io rebuild")
			continue
		}
		g.connections = append(g.connections, Connection{
			SourceNode:    src.id,
			SourceChannel: w.src.channel,
			DestNode:      dst.id,
			DestChannel:   w.dst.channel,
		})
	}
}
