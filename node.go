package stagegraph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
)

// Reserved type tags for the three permanent roles. AddEffect rejects them;
// the graph creates these nodes itself during Prepare.
const (
	TypeTagHardwareInput  = "audioInput"
	TypeTagHardwareOutput = "audioOutput"
	TypeTagPlayback       = "playback"
)

// BusLayout describes a node's channel configuration.
type BusLayout struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// Processor is the capability contract every pluggable effect unit
// implements. The graph owns the lifecycle calls; GetStateInformation and
// SetStateInformation exchange an opaque parameter blob that only the
// processor itself interprets.
//
// ProcessBlock runs on the audio thread and must not allocate, lock, or
// block. All other methods run on the control thread.
type Processor interface {
	PrepareToPlay(sampleRate float64, blockSize int)
	ReleaseResources()
	ProcessBlock(buf *Buffer, midiMessages []midi.Message)
	IsBusesLayoutSupported(layout BusLayout) bool
	EffectType() string
	NodeCategory() string
	GetStateInformation() ([]byte, error)
	SetStateInformation(data []byte) error
}

// Node is one entry in the graph's node table. It pairs a Processor with
// the bookkeeping the graph and canvas need: identity, type tag, canvas
// position, bypass flag, and bus layout. Nodes are owned exclusively by
// the Graph and referenced by ID everywhere else.
type Node struct {
	id        uuid.UUID
	typeTag   string
	category  string
	layout    BusLayout
	processor Processor

	// Written by the control thread, read by the audio thread.
	bypassed atomic.Bool

	// Canvas position, persisted but never used by audio logic.
	// Guarded by the graph mutex.
	x, y float64
}

// ID returns the node's identity. IDs are never reused within a graph
// instance's lifetime.
func (n *Node) ID() uuid.UUID { return n.id }

// TypeTag returns the factory key this node was created from, or one of
// the reserved permanent-role tags.
func (n *Node) TypeTag() string { return n.typeTag }

// Category returns the cosmetic category string for canvas theming.
func (n *Node) Category() string { return n.category }

// Layout returns the node's bus layout.
func (n *Node) Layout() BusLayout { return n.layout }

// IsBypassed reports the bypass flag. Safe from any goroutine.
func (n *Node) IsBypassed() bool { return n.bypassed.Load() }

// SetBypassed sets the bypass flag. Safe from any goroutine.
func (n *Node) SetBypassed(b bool) { n.bypassed.Store(b) }

// IsPermanent reports whether this node holds one of the three permanent
// roles.
func (n *Node) IsPermanent() bool {
	switch n.typeTag {
	case TypeTagHardwareInput, TypeTagHardwareOutput, TypeTagPlayback:
		return true
	}
	return false
}

func newNode(typeTag string, proc Processor, layout BusLayout, x, y float64) *Node {
	return &Node{
		id:        uuid.New(),
		typeTag:   typeTag,
		category:  proc.NodeCategory(),
		layout:    layout,
		processor: proc,
		x:         x,
		y:         y,
	}
}

// NodeInfo is a read-only view of a node for canvas rendering and tests.
type NodeInfo struct {
	ID       uuid.UUID `json:"id"`
	TypeTag  string    `json:"type"`
	Category string    `json:"category,omitempty"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Bypassed bool      `json:"bypassed"`
	Layout   BusLayout `json:"layout"`
}

// =============================================================================
// Effect factory registry
// =============================================================================

// ProcessorFactory creates a fresh Processor instance at its default
// parameter state.
type ProcessorFactory func() Processor

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProcessorFactory)
)

// Register makes an effect type available to AddEffect under the given
// type tag. Registering a reserved tag or a duplicate panics; effect
// packages register from init, so this is a programming error, not a
// runtime condition.
func Register(typeTag string, factory ProcessorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	switch typeTag {
	case TypeTagHardwareInput, TypeTagHardwareOutput, TypeTagPlayback:
		panic("stagegraph: cannot register reserved type tag " + typeTag)
	}
	if _, exists := registry[typeTag]; exists {
		panic("stagegraph: duplicate effect type tag " + typeTag)
	}
	registry[typeTag] = factory
}

// AvailableEffectTypes returns the registered type tags, sorted.
func AvailableEffectTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func lookupFactory(typeTag string) (ProcessorFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[typeTag]
	return f, ok
}
