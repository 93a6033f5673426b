package stagegraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onstage/stagegraph/logging"
)

// SnapshotVersion is written into every snapshot. Readers reject
// versions they do not understand.
const SnapshotVersion = 1

// Sentinel connection indices for the permanent roles. Non-negative
// indices refer to the positional order of the snapshot's node list.
const (
	snapIndexInput    = -1
	snapIndexOutput   = -2
	snapIndexPlayback = -3
)

// PermanentNodeSnapshot persists the cosmetic state of one permanent
// role. Identity and channel counts are never saved; they belong to
// whatever hardware is present at load time.
type PermanentNodeSnapshot struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Bypassed bool    `json:"bypassed"`
}

// NodeSnapshot persists one user node: its type tag, canvas position,
// bypass flag, and the processor's opaque parameter blob.
type NodeSnapshot struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Bypassed bool    `json:"bypassed"`
	State    []byte  `json:"state,omitempty"`
}

// ConnectionSnapshot persists one edge using positional node indices.
type ConnectionSnapshot struct {
	SrcIndex   int `json:"srcIndex"`
	SrcChannel int `json:"srcChannel"`
	DstIndex   int `json:"dstIndex"`
	DstChannel int `json:"dstChannel"`
}

// Snapshot is the complete persisted form of a graph. Node identity is
// positional: index i refers to Nodes[i], and the sentinels refer to the
// permanent roles.
type Snapshot struct {
	Version     int                   `json:"version"`
	Input       PermanentNodeSnapshot `json:"input"`
	Output      PermanentNodeSnapshot `json:"output"`
	Playback    PermanentNodeSnapshot `json:"playback"`
	Nodes       []NodeSnapshot        `json:"nodes"`
	Connections []ConnectionSnapshot  `json:"connections"`
	WindowSizes map[string]WindowSize `json:"windowSizes,omitempty"`
}

// Serializer converts graphs to and from snapshots. It mutates the graph
// only through its public operations, so every load goes through the same
// validation as interactive editing.
type Serializer struct {
	log zerolog.Logger
}

// NewSerializer returns a serializer.
func NewSerializer() *Serializer {
	return &Serializer{log: logging.Component("serializer")}
}

// SaveGraph captures the graph's current state. The graph must be
// prepared so the permanent roles resolve.
func (s *Serializer) SaveGraph(g *Graph) (*Snapshot, error) {
	if !g.IsPrepared() {
		return nil, fmt.Errorf("cannot save: graph is not prepared")
	}

	snap := &Snapshot{
		Version:     SnapshotVersion,
		WindowSizes: g.EditorWindowSizes(),
	}

	for _, tag := range []string{TypeTagHardwareInput, TypeTagHardwareOutput, TypeTagPlayback} {
		id, _ := g.PermanentNodeID(tag)
		info, _ := g.Node(id)
		p := PermanentNodeSnapshot{X: info.X, Y: info.Y, Bypassed: info.Bypassed}
		switch tag {
		case TypeTagHardwareInput:
			snap.Input = p
		case TypeTagHardwareOutput:
			snap.Output = p
		case TypeTagPlayback:
			snap.Playback = p
		}
	}

	users := g.UserNodes()
	indexOf := make(map[uuid.UUID]int, len(users))
	for i, info := range users {
		state, err := g.NodeState(info.ID)
		if err != nil {
			return nil, fmt.Errorf("saving state of node %s (%s): %w", info.ID, info.TypeTag, err)
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			Type:     info.TypeTag,
			X:        info.X,
			Y:        info.Y,
			Bypassed: info.Bypassed,
			State:    state,
		})
		indexOf[info.ID] = i
	}

	snapIndex := func(id uuid.UUID) (int, bool) {
		if i, ok := indexOf[id]; ok {
			return i, true
		}
		if pid, ok := g.PermanentNodeID(TypeTagHardwareInput); ok && pid == id {
			return snapIndexInput, true
		}
		if pid, ok := g.PermanentNodeID(TypeTagHardwareOutput); ok && pid == id {
			return snapIndexOutput, true
		}
		if pid, ok := g.PermanentNodeID(TypeTagPlayback); ok && pid == id {
			return snapIndexPlayback, true
		}
		return 0, false
	}

	for _, c := range g.Connections() {
		si, okSrc := snapIndex(c.SourceNode)
		di, okDst := snapIndex(c.DestNode)
		if !okSrc || !okDst {
			continue
		}
		snap.Connections = append(snap.Connections, ConnectionSnapshot{
			SrcIndex:   si,
			SrcChannel: c.SourceChannel,
			DstIndex:   di,
			DstChannel: c.DestChannel,
		})
	}

	return snap, nil
}

// LoadGraph replaces the graph's user topology with the snapshot's.
// Structural problems (bad version, unknown effect type, node index out
// of range) fail before anything is mutated. Individual connections that
// no longer fit the current hardware shape are skipped, matching what an
// interactive edit would do. The permanent nodes themselves survive;
// only their position and bypass flags come from the snapshot.
func (s *Serializer) LoadGraph(g *Graph, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if !g.IsPrepared() {
		return fmt.Errorf("cannot load: graph is not prepared")
	}

	// Validate everything up front.
	for i, ns := range snap.Nodes {
		if _, ok := lookupFactory(ns.Type); !ok {
			return fmt.Errorf("node %d: unknown effect type %q", i, ns.Type)
		}
	}
	validIndex := func(idx int) bool {
		if idx >= 0 {
			return idx < len(snap.Nodes)
		}
		return idx == snapIndexInput || idx == snapIndexOutput || idx == snapIndexPlayback
	}
	for i, cs := range snap.Connections {
		if !validIndex(cs.SrcIndex) || !validIndex(cs.DstIndex) {
			return fmt.Errorf("connection %d: node index out of range", i)
		}
	}

	// Clear existing user topology, then any surviving wires between
	// permanent nodes; the snapshot carries the full connection set.
	for _, info := range g.UserNodes() {
		if err := g.RemoveNode(info.ID); err != nil {
			return fmt.Errorf("clearing node %s: %w", info.ID, err)
		}
	}
	for _, c := range g.Connections() {
		g.RemoveConnection(c)
	}

	// Recreate nodes in snapshot order, building the index table.
	ids := make([]uuid.UUID, len(snap.Nodes))
	for i, ns := range snap.Nodes {
		id, err := g.AddEffect(ns.Type, ns.X, ns.Y)
		if err != nil {
			return fmt.Errorf("recreating node %d (%s): %w", i, ns.Type, err)
		}
		ids[i] = id
		if len(ns.State) > 0 {
			if err := g.SetNodeState(id, ns.State); err != nil {
				s.log.Warn().Err(err).Str("type", ns.Type).Msg("node state rejected")
			}
		}
		if ns.Bypassed {
			g.SetNodeBypassed(id, true)
		}
	}

	resolve := func(idx int) (uuid.UUID, bool) {
		switch idx {
		case snapIndexInput:
			return g.PermanentNodeID(TypeTagHardwareInput)
		case snapIndexOutput:
			return g.PermanentNodeID(TypeTagHardwareOutput)
		case snapIndexPlayback:
			return g.PermanentNodeID(TypeTagPlayback)
		default:
			return ids[idx], true
		}
	}

	for _, cs := range snap.Connections {
		srcID, okSrc := resolve(cs.SrcIndex)
		dstID, okDst := resolve(cs.DstIndex)
		if !okSrc || !okDst {
			metricDroppedWires.Inc()
			continue
		}
		err := g.AddConnection(Connection{
			SourceNode:    srcID,
			SourceChannel: cs.SrcChannel,
			DestNode:      dstID,
			DestChannel:   cs.DstChannel,
		})
		if err != nil {
			// Channel shrank or edge no longer fits; skip like an
			// interactive edit would.
			metricDroppedWires.Inc()
			s.log.Debug().Err(err).Msg("connection skipped on load")
		}
	}

	// Permanent cosmetic state.
	applyPermanent := func(tag string, p PermanentNodeSnapshot) {
		if id, ok := g.PermanentNodeID(tag); ok {
			g.SetNodePosition(id, p.X, p.Y)
			g.SetNodeBypassed(id, p.Bypassed)
		}
	}
	applyPermanent(TypeTagHardwareInput, snap.Input)
	applyPermanent(TypeTagHardwareOutput, snap.Output)
	applyPermanent(TypeTagPlayback, snap.Playback)

	for tag, size := range snap.WindowSizes {
		g.SetEditorWindowSize(tag, size)
	}

	return nil
}

// SaveToWriter writes a snapshot of g as indented JSON.
func (s *Serializer) SaveToWriter(g *Graph, w io.Writer) error {
	snap, err := s.SaveGraph(g)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// LoadFromReader decodes a snapshot and applies it to g.
func (s *Serializer) LoadFromReader(g *Graph, r io.Reader) error {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return s.LoadGraph(g, &snap)
}

// SaveToFile writes a snapshot to path via a temp file and rename, so a
// failed save never leaves a corrupt file behind.
func (s *Serializer) SaveToFile(g *Graph, path string) error {
	snap, err := s.SaveGraph(g)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads a snapshot file and applies it to g.
func (s *Serializer) LoadFromFile(g *Graph, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot file: %w", err)
	}
	defer f.Close()
	return s.LoadFromReader(g, f)
}
