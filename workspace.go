package stagegraph

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/onstage/stagegraph/logging"
)

// MaxWorkspaces is the fixed slot count. Slots are index-addressed 0..15
// and named "1".."16" by default.
const MaxWorkspaces = 16

// WorkspaceSlot is one saved scene: bookkeeping plus the snapshot, kept
// together so a slot's fields can never disagree.
type WorkspaceSlot struct {
	Name     string    `json:"name"`
	Enabled  bool      `json:"enabled"`
	Occupied bool      `json:"occupied"`
	Data     *Snapshot `json:"data,omitempty"`
}

// WorkspaceState is the whole-manager persisted shape.
type WorkspaceState struct {
	Active int                           `json:"active"`
	Slots  [MaxWorkspaces]WorkspaceSlot `json:"slots"`
}

// WorkspaceManager coordinates swapping the entire live graph for a
// saved one. Exactly one slot is active at all times; the active slot's
// snapshot is implicit (the live graph) until a switch or save
// materializes it.
//
// All methods run on the control thread; the manager never caches live
// graph state, only snapshots obtained through the serializer.
type WorkspaceManager struct {
	graph      *Graph
	serializer *Serializer
	slots      [MaxWorkspaces]WorkspaceSlot
	active     int
	log        zerolog.Logger
}

// NewWorkspaceManager returns a manager at startup defaults: slots named
// "1".."16", slot 0 enabled and active, everything empty.
func NewWorkspaceManager(graph *Graph, serializer *Serializer) *WorkspaceManager {
	m := &WorkspaceManager{
		graph:      graph,
		serializer: serializer,
		log:        logging.Component("workspace"),
	}
	m.resetSlots()
	return m
}

func (m *WorkspaceManager) resetSlots() {
	for i := range m.slots {
		m.slots[i] = WorkspaceSlot{Name: strconv.Itoa(i + 1)}
	}
	m.slots[0].Enabled = true
	m.active = 0
}

// Active returns the active slot index.
func (m *WorkspaceManager) Active() int { return m.active }

// Slot returns a copy of one slot's bookkeeping.
func (m *WorkspaceManager) Slot(index int) (WorkspaceSlot, error) {
	if index < 0 || index >= MaxWorkspaces {
		return WorkspaceSlot{}, fmt.Errorf("workspace index %d out of range", index)
	}
	return m.slots[index], nil
}

// SetName renames a slot.
func (m *WorkspaceManager) SetName(index int, name string) error {
	if index < 0 || index >= MaxWorkspaces {
		return fmt.Errorf("workspace index %d out of range", index)
	}
	if name != "" {
		m.slots[index].Name = name
	}
	return nil
}

// SetEnabled marks a slot switchable. The active slot cannot be
// disabled.
func (m *WorkspaceManager) SetEnabled(index int, enabled bool) error {
	if index < 0 || index >= MaxWorkspaces {
		return fmt.Errorf("workspace index %d out of range", index)
	}
	if !enabled && index == m.active {
		return fmt.Errorf("cannot disable the active workspace")
	}
	m.slots[index].Enabled = enabled
	return nil
}

// SwitchWorkspace makes target the active slot. Out-of-range, disabled,
// and already-active targets are no-ops. The outgoing live graph is
// captured into the current active slot before anything is torn down, so
// it is never lost even when the incoming slot is empty.
func (m *WorkspaceManager) SwitchWorkspace(target int) error {
	if target < 0 || target >= MaxWorkspaces {
		return nil
	}
	if target == m.active || !m.slots[target].Enabled {
		return nil
	}

	snap, err := m.serializer.SaveGraph(m.graph)
	if err != nil {
		return fmt.Errorf("capturing workspace %d: %w", m.active, err)
	}
	m.slots[m.active].Data = snap
	m.slots[m.active].Occupied = true

	m.clearLiveUserNodes()

	if m.slots[target].Occupied && m.slots[target].Data != nil {
		if err := m.serializer.LoadGraph(m.graph, m.slots[target].Data); err != nil {
			return fmt.Errorf("loading workspace %d: %w", target, err)
		}
	}

	m.log.Info().Int("from", m.active).Int("to", target).Msg("workspace switch")
	m.active = target
	metricWorkspaceSwitches.Inc()
	return nil
}

// ClearWorkspace empties a slot. Clearing the active slot also clears
// the live non-permanent nodes.
func (m *WorkspaceManager) ClearWorkspace(index int) error {
	if index < 0 || index >= MaxWorkspaces {
		return fmt.Errorf("workspace index %d out of range", index)
	}
	if index == m.active {
		m.clearLiveUserNodes()
	}
	m.slots[index].Data = nil
	m.slots[index].Occupied = false
	return nil
}

// DuplicateWorkspace copies src's snapshot into dst and marks dst
// enabled. An active src is captured live first; an active dst loads
// the copy into the live graph immediately.
func (m *WorkspaceManager) DuplicateWorkspace(src, dst int) error {
	if src < 0 || src >= MaxWorkspaces || dst < 0 || dst >= MaxWorkspaces {
		return fmt.Errorf("workspace index out of range")
	}
	if src == dst {
		return nil
	}

	var snap *Snapshot
	if src == m.active {
		live, err := m.serializer.SaveGraph(m.graph)
		if err != nil {
			return fmt.Errorf("capturing workspace %d: %w", src, err)
		}
		snap = live
	} else {
		if !m.slots[src].Occupied || m.slots[src].Data == nil {
			return fmt.Errorf("workspace %d is empty", src)
		}
		snap = m.slots[src].Data.clone()
	}

	m.slots[dst].Data = snap
	m.slots[dst].Occupied = true
	m.slots[dst].Enabled = true

	if dst == m.active {
		m.clearLiveUserNodes()
		if err := m.serializer.LoadGraph(m.graph, snap); err != nil {
			return fmt.Errorf("loading duplicated workspace: %w", err)
		}
	}
	return nil
}

// ResetAll clears the live non-permanent nodes and every slot, restoring
// startup defaults.
func (m *WorkspaceManager) ResetAll() {
	m.clearLiveUserNodes()
	m.resetSlots()
	m.log.Info().Msg("workspaces reset")
}

// GetState serializes every slot plus the active index. The active slot
// is captured live first so the persisted form is self-contained.
func (m *WorkspaceManager) GetState() (*WorkspaceState, error) {
	snap, err := m.serializer.SaveGraph(m.graph)
	if err != nil {
		return nil, fmt.Errorf("capturing active workspace: %w", err)
	}
	m.slots[m.active].Data = snap
	m.slots[m.active].Occupied = true

	state := &WorkspaceState{Active: m.active}
	for i := range m.slots {
		state.Slots[i] = m.slots[i]
		if m.slots[i].Data != nil {
			state.Slots[i].Data = m.slots[i].Data.clone()
		}
	}
	return state, nil
}

// RestoreState reconstructs all bookkeeping from a persisted state and
// loads the restored active slot into the live graph.
func (m *WorkspaceManager) RestoreState(state *WorkspaceState) error {
	if state == nil {
		return fmt.Errorf("nil workspace state")
	}
	if state.Active < 0 || state.Active >= MaxWorkspaces {
		return fmt.Errorf("active index %d out of range", state.Active)
	}

	m.slots = state.Slots
	m.active = state.Active
	m.slots[m.active].Enabled = true

	m.clearLiveUserNodes()
	if m.slots[m.active].Occupied && m.slots[m.active].Data != nil {
		if err := m.serializer.LoadGraph(m.graph, m.slots[m.active].Data); err != nil {
			return fmt.Errorf("loading restored workspace %d: %w", m.active, err)
		}
	}
	return nil
}

// clearLiveUserNodes removes every non-permanent node from the live
// graph. Permanent nodes and wires between them stay, preserving
// hardware routing continuity through a switch.
func (m *WorkspaceManager) clearLiveUserNodes() {
	for _, info := range m.graph.UserNodes() {
		if err := m.graph.RemoveNode(info.ID); err != nil {
			m.log.Warn().Err(err).Str("node", info.ID.String()).Msg("clear failed")
		}
	}
}

// clone deep-copies a snapshot so slots never alias each other's data.
func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Nodes = make([]NodeSnapshot, len(s.Nodes))
	for i, n := range s.Nodes {
		out.Nodes[i] = n
		if n.State != nil {
			out.Nodes[i].State = append([]byte(nil), n.State...)
		}
	}
	out.Connections = append([]ConnectionSnapshot(nil), s.Connections...)
	if s.WindowSizes != nil {
		out.WindowSizes = make(map[string]WindowSize, len(s.WindowSizes))
		for k, v := range s.WindowSizes {
			out.WindowSizes[k] = v
		}
	}
	return &out
}
