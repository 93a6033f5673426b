package stagegraph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onstage/stagegraph/logging"
	"github.com/onstage/stagegraph/media"
)

// Defaults applied when Prepare receives non-positive values.
const (
	DefaultSampleRate = 48000.0
	DefaultBlockSize  = 512

	// DefaultFlushBlocks is the number of forced-silence output blocks
	// after a device restart, flushing stale samples trapped in delay
	// lines and reverb tails.
	DefaultFlushBlocks = 4
)

// Default canvas positions for the permanent nodes (grid-aligned).
const (
	defaultInputX, defaultInputY       = 90.0, 90.0
	defaultOutputX, defaultOutputY     = 90.0, 540.0
	defaultPlaybackX, defaultPlaybackY = 675.0, 90.0
)

// Connection is a directed edge from one channel of a source node to one
// channel of a destination node. Both endpoints always exist in the node
// table; removing a node removes every connection touching it.
type Connection struct {
	SourceNode    uuid.UUID `json:"sourceNode"`
	SourceChannel int       `json:"sourceChannel"`
	DestNode      uuid.UUID `json:"destNode"`
	DestChannel   int       `json:"destChannel"`
}

// WindowSize is a persisted editor window size for one effect type.
type WindowSize struct {
	W int `json:"w"`
	H int `json:"h"`
}

// permanentNodes groups the three permanent-role nodes. The graph swaps
// the whole set as one atomic unit during a rebuild, so the audio thread
// either sees the complete old epoch or the complete new one.
type permanentNodes struct {
	input    *Node
	output   *Node
	playback *Node
}

// Graph owns the canonical node table and connection list, exposes every
// structural mutation, and renders the topology once per hardware block.
//
// Two execution contexts touch it: a single control goroutine performs
// all mutation under the mutex, and the audio thread calls ProcessBlock,
// which reads only atomically published state and never locks.
type Graph struct {
	mu          sync.RWMutex
	nodes       map[uuid.UUID]*Node
	order       []uuid.UUID // insertion order; drives positional snapshots
	connections []Connection
	windowSizes map[string]WindowSize

	io   atomic.Pointer[permanentNodes]
	plan atomic.Pointer[renderPlan]

	prepared  atomic.Bool
	suspended atomic.Bool

	sampleRate float64
	blockSize  int
	numHWIn    int
	numHWOut   int
	player     media.Player

	flushBlocks    int
	flushCountdown atomic.Int32

	// Audio-thread-owned gain smoothing state for I/O bypass fades.
	inGain  float64
	outGain float64

	inputPeaks  [maxMeterChannels]atomic.Uint64
	outputPeaks [maxMeterChannels]atomic.Uint64

	log zerolog.Logger
}

// NewGraph creates an unprepared graph. Call Prepare once the hardware
// channel counts are known.
func NewGraph() *Graph {
	return &Graph{
		nodes:       make(map[uuid.UUID]*Node),
		windowSizes: make(map[string]WindowSize),
		flushBlocks: DefaultFlushBlocks,
		inGain:      1.0,
		outGain:     1.0,
		log:         logging.Component("graph"),
	}
}

// SetFlushBlocks overrides the forced-silence block count armed by
// Prepare and FlushBuffers. Values below 1 are ignored.
func (g *Graph) SetFlushBlocks(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n >= 1 {
		g.flushBlocks = n
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Prepare (re)builds the permanent nodes for the given hardware shape and
// prepares every processor. It is idempotent and safe to call repeatedly:
// later calls rebuild only the permanent nodes, preserving user nodes and
// user-to-user wires. Connections touching a permanent node are saved by
// (role, channel) and replayed; wires whose channel no longer exists in
// the new counts are silently dropped. Negative channel counts clamp to
// zero. A nil player falls back to silence.
func (g *Graph) Prepare(sampleRate float64, blockSize, numHWIn, numHWOut int, player media.Player) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if numHWIn < 0 {
		numHWIn = 0
	}
	if numHWOut < 0 {
		numHWOut = 0
	}
	if player == nil {
		player = media.NullPlayer{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.log.Info().
		Float64("sampleRate", sampleRate).
		Int("blockSize", blockSize).
		Int("hwIn", numHWIn).
		Int("hwOut", numHWOut).
		Msg("prepare")

	g.sampleRate = sampleRate
	g.blockSize = blockSize
	g.numHWIn = numHWIn
	g.numHWOut = numHWOut
	g.player = player

	g.rebuildIONodesLocked()

	for _, id := range g.order {
		g.nodes[id].processor.PrepareToPlay(sampleRate, blockSize)
	}

	g.prepared.Store(true)
	g.suspended.Store(false)
	g.rebuildPlanLocked()

	g.flushCountdown.Store(int32(g.flushBlocks))
	metricFlushArms.Inc()
}

// ReleaseResources tears down every node and returns the graph to the
// unprepared state.
func (g *Graph) ReleaseResources() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.prepared.Load() && len(g.nodes) == 0 {
		return
	}

	g.log.Info().Msg("release resources")

	g.prepared.Store(false)
	g.suspended.Store(false)
	g.plan.Store(nil)
	g.io.Store(nil)

	for _, id := range g.order {
		g.nodes[id].processor.ReleaseResources()
	}
	g.nodes = make(map[uuid.UUID]*Node)
	g.order = nil
	g.connections = nil
}

// Suspend marks the graph offline, preserving topology. ProcessBlock
// outputs silence until the next Prepare.
func (g *Graph) Suspend() {
	if g.prepared.Load() && !g.suspended.Load() {
		g.log.Info().Msg("suspend")
	}
	g.suspended.Store(true)
}

// FlushBuffers arms the forced-silence countdown after a device restart.
// While it runs, hardware output is silenced but input keeps feeding the
// nodes so their internal state keeps evolving. The countdown itself is
// decremented only by the audio thread.
func (g *Graph) FlushBuffers() {
	if !g.prepared.Load() {
		return
	}
	g.mu.RLock()
	n := g.flushBlocks
	g.mu.RUnlock()
	g.flushCountdown.Store(int32(n))
	metricFlushArms.Inc()
}

// IsPrepared reports whether the permanent nodes exist and the graph can
// render.
func (g *Graph) IsPrepared() bool { return g.prepared.Load() }

// IsSuspended reports whether the graph is marked offline.
func (g *Graph) IsSuspended() bool { return g.suspended.Load() }

// SampleRate returns the prepared sample rate.
func (g *Graph) SampleRate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sampleRate
}

// BlockSize returns the prepared block size.
func (g *Graph) BlockSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.blockSize
}

// HardwareChannels returns the prepared hardware input and output counts.
func (g *Graph) HardwareChannels() (in, out int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.numHWIn, g.numHWOut
}

// =============================================================================
// Structural mutation (control thread only)
// =============================================================================

// AddEffect creates an effect node by type tag at default parameter state
// with no connections. Unknown tags and reserved permanent tags fail.
// Returns the new node's ID.
func (g *Graph) AddEffect(typeTag string, x, y float64) (uuid.UUID, error) {
	factory, ok := lookupFactory(typeTag)
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown effect type %q", typeTag)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.prepared.Load() {
		return uuid.Nil, fmt.Errorf("graph is not prepared")
	}

	proc := factory()
	layout := BusLayout{Inputs: 2, Outputs: 2}
	if !proc.IsBusesLayoutSupported(layout) {
		layout = BusLayout{Inputs: 1, Outputs: 1}
		if !proc.IsBusesLayoutSupported(layout) {
			return uuid.Nil, fmt.Errorf("effect type %q supports no usable bus layout", typeTag)
		}
	}
	proc.PrepareToPlay(g.sampleRate, g.blockSize)

	node := newNode(typeTag, proc, layout, x, y)
	g.nodes[node.id] = node
	g.order = append(g.order, node.id)
	g.rebuildPlanLocked()

	g.log.Debug().Str("type", typeTag).Str("node", node.id.String()).Msg("effect added")
	return node.id, nil
}

// RemoveNode disconnects and removes a user node. Permanent nodes are
// rejected; an already-absent ID is a no-op.
func (g *Graph) RemoveNode(id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[id]
	if !exists {
		return nil // idempotent
	}
	if node.IsPermanent() {
		return fmt.Errorf("cannot remove permanent node %s", node.typeTag)
	}

	g.disconnectLocked(id)
	node.processor.ReleaseResources()
	g.removeFromTableLocked(id)
	g.rebuildPlanLocked()
	return nil
}

// DisconnectNode removes every connection touching id without removing
// the node itself.
func (g *Graph) DisconnectNode(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.disconnectLocked(id) > 0 {
		g.rebuildPlanLocked()
	}
}

// AddConnection validates and adds a directed edge. Both endpoints must
// exist, channel indices must be within each node's bus layout, exact
// duplicates are rejected, and edges that would create a cycle are
// rejected (the render order is a topological sort, so a cycle could
// never render).
func (g *Graph) AddConnection(c Connection) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[c.SourceNode]
	if !ok {
		return fmt.Errorf("source node %s not found", c.SourceNode)
	}
	dst, ok := g.nodes[c.DestNode]
	if !ok {
		return fmt.Errorf("destination node %s not found", c.DestNode)
	}
	if c.SourceChannel < 0 || c.SourceChannel >= src.layout.Outputs {
		return fmt.Errorf("source channel %d out of range (node has %d outputs)",
			c.SourceChannel, src.layout.Outputs)
	}
	if c.DestChannel < 0 || c.DestChannel >= dst.layout.Inputs {
		return fmt.Errorf("destination channel %d out of range (node has %d inputs)",
			c.DestChannel, dst.layout.Inputs)
	}
	for _, existing := range g.connections {
		if existing == c {
			return fmt.Errorf("connection already exists")
		}
	}
	if g.wouldCreateCycleLocked(c.SourceNode, c.DestNode) {
		return fmt.Errorf("connection would create a cycle")
	}

	g.connections = append(g.connections, c)
	g.rebuildPlanLocked()
	return nil
}

// RemoveConnection removes an exactly matching edge.
func (g *Graph) RemoveConnection(c Connection) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, existing := range g.connections {
		if existing == c {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			g.rebuildPlanLocked()
			return nil
		}
	}
	return fmt.Errorf("connection not found")
}

// SetNodeBypassed toggles a node's bypass flag.
func (g *Graph) SetNodeBypassed(id uuid.UUID, bypassed bool) error {
	g.mu.RLock()
	node, exists := g.nodes[id]
	g.mu.RUnlock()
	if !exists {
		return fmt.Errorf("node %s not found", id)
	}
	node.SetBypassed(bypassed)
	return nil
}

// SetNodePosition moves a node on the canvas. Position is cosmetic and
// never affects audio.
func (g *Graph) SetNodePosition(id uuid.UUID, x, y float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("node %s not found", id)
	}
	node.x, node.y = x, y
	return nil
}

// SetNodeState pushes an opaque parameter blob into a node's processor.
func (g *Graph) SetNodeState(id uuid.UUID, state []byte) error {
	g.mu.RLock()
	node, exists := g.nodes[id]
	g.mu.RUnlock()
	if !exists {
		return fmt.Errorf("node %s not found", id)
	}
	return node.processor.SetStateInformation(state)
}

// NodeState pulls a node's opaque parameter blob.
func (g *Graph) NodeState(id uuid.UUID) ([]byte, error) {
	g.mu.RLock()
	node, exists := g.nodes[id]
	g.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("node %s not found", id)
	}
	return node.processor.GetStateInformation()
}

// =============================================================================
// Read-only views (canvas, serializer, tests)
// =============================================================================

// Nodes returns a read-only view of every node in insertion order.
func (g *Graph) Nodes() []NodeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(g.order))
	for _, id := range g.order {
		infos = append(infos, g.nodes[id].infoLocked())
	}
	return infos
}

// UserNodes returns the non-permanent nodes in insertion order. This is
// the positional order snapshots are indexed by.
func (g *Graph) UserNodes() []NodeInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(g.order))
	for _, id := range g.order {
		if node := g.nodes[id]; !node.IsPermanent() {
			infos = append(infos, node.infoLocked())
		}
	}
	return infos
}

// Node returns a read-only view of one node.
func (g *Graph) Node(id uuid.UUID) (NodeInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, exists := g.nodes[id]
	if !exists {
		return NodeInfo{}, false
	}
	return node.infoLocked(), true
}

// Connections returns a copy of the connection list.
func (g *Graph) Connections() []Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Connection, len(g.connections))
	copy(out, g.connections)
	return out
}

// PermanentNodeID returns the current node ID holding the given permanent
// role tag, if prepared.
func (g *Graph) PermanentNodeID(typeTag string) (uuid.UUID, bool) {
	io := g.io.Load()
	if io == nil {
		return uuid.Nil, false
	}
	switch typeTag {
	case TypeTagHardwareInput:
		return io.input.id, true
	case TypeTagHardwareOutput:
		return io.output.id, true
	case TypeTagPlayback:
		return io.playback.id, true
	}
	return uuid.Nil, false
}

// SetEditorWindowSize records the persisted editor window size for an
// effect type.
func (g *Graph) SetEditorWindowSize(typeTag string, size WindowSize) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if size.W > 0 && size.H > 0 {
		g.windowSizes[typeTag] = size
	}
}

// EditorWindowSizes returns a copy of the persisted window-size map.
func (g *Graph) EditorWindowSizes() map[string]WindowSize {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]WindowSize, len(g.windowSizes))
	for k, v := range g.windowSizes {
		out[k] = v
	}
	return out
}

func (n *Node) infoLocked() NodeInfo {
	return NodeInfo{
		ID:       n.id,
		TypeTag:  n.typeTag,
		Category: n.category,
		X:        n.x,
		Y:        n.y,
		Bypassed: n.IsBypassed(),
		Layout:   n.layout,
	}
}

// =============================================================================
// Internal helpers (mutex held)
// =============================================================================

// disconnectLocked removes every edge touching id and returns how many
// were removed.
func (g *Graph) disconnectLocked(id uuid.UUID) int {
	kept := g.connections[:0]
	removed := 0
	for _, c := range g.connections {
		if c.SourceNode == id || c.DestNode == id {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	g.connections = kept
	return removed
}

func (g *Graph) removeFromTableLocked(id uuid.UUID) {
	delete(g.nodes, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// wouldCreateCycleLocked reports whether adding src→dst closes a loop,
// i.e. whether src is already reachable from dst.
func (g *Graph) wouldCreateCycleLocked(src, dst uuid.UUID) bool {
	if src == dst {
		return true
	}
	visited := make(map[uuid.UUID]bool, len(g.nodes))
	stack := []uuid.UUID{dst}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == src {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, c := range g.connections {
			if c.SourceNode == cur {
				stack = append(stack, c.DestNode)
			}
		}
	}
	return false
}
