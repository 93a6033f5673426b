package stagegraph

import (
	"strconv"
	"testing"
)

func newWorkspaceFixture(t *testing.T) (*Graph, *WorkspaceManager) {
	t.Helper()
	g := newPreparedGraph(t, 2, 2)
	m := NewWorkspaceManager(g, NewSerializer())
	return g, m
}

func TestWorkspaceDefaults(t *testing.T) {
	_, m := newWorkspaceFixture(t)

	if m.Active() != 0 {
		t.Errorf("active = %d, want 0", m.Active())
	}
	for i := 0; i < MaxWorkspaces; i++ {
		slot, err := m.Slot(i)
		if err != nil {
			t.Fatalf("Slot(%d): %v", i, err)
		}
		wantName := strconv.Itoa(i + 1)
		if slot.Name != wantName {
			t.Errorf("slot %d name = %q, want %q", i, slot.Name, wantName)
		}
		if slot.Enabled != (i == 0) {
			t.Errorf("slot %d enabled = %v", i, slot.Enabled)
		}
		if slot.Occupied {
			t.Errorf("slot %d should start empty", i)
		}
	}
	if _, err := m.Slot(16); err == nil {
		t.Error("expected error for out-of-range slot")
	}
}

func TestSwitchWorkspaceCapturesOutgoing(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)

	if err := m.SetEnabled(1, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := m.SwitchWorkspace(1); err != nil {
		t.Fatalf("SwitchWorkspace: %v", err)
	}

	if m.Active() != 1 {
		t.Errorf("active = %d, want 1", m.Active())
	}
	slot0, _ := m.Slot(0)
	if !slot0.Occupied || slot0.Data == nil {
		t.Fatal("outgoing workspace must be captured before teardown")
	}
	if len(slot0.Data.Nodes) != 2 {
		t.Errorf("captured nodes = %d, want 2", len(slot0.Data.Nodes))
	}
	if len(g.UserNodes()) != 0 {
		t.Errorf("live graph should hold only permanent nodes, got %d user nodes", len(g.UserNodes()))
	}
}

func TestSwitchWorkspaceRestoresExactState(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)

	before, err := NewSerializer().SaveGraph(g)
	if err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}

	m.SetEnabled(1, true)
	if err := m.SwitchWorkspace(1); err != nil {
		t.Fatalf("switch to 1: %v", err)
	}
	if err := m.SwitchWorkspace(0); err != nil {
		t.Fatalf("switch back to 0: %v", err)
	}

	after, err := NewSerializer().SaveGraph(g)
	if err != nil {
		t.Fatalf("SaveGraph after: %v", err)
	}

	if len(after.Nodes) != len(before.Nodes) {
		t.Fatalf("node count changed: %d != %d", len(after.Nodes), len(before.Nodes))
	}
	for i := range before.Nodes {
		if after.Nodes[i].Type != before.Nodes[i].Type {
			t.Errorf("node %d type %s != %s", i, after.Nodes[i].Type, before.Nodes[i].Type)
		}
		if after.Nodes[i].Bypassed != before.Nodes[i].Bypassed {
			t.Errorf("node %d bypass changed", i)
		}
		if string(after.Nodes[i].State) != string(before.Nodes[i].State) {
			t.Errorf("node %d state changed: %s != %s", i, after.Nodes[i].State, before.Nodes[i].State)
		}
	}
	if len(after.Connections) != len(before.Connections) {
		t.Errorf("connection count changed: %d != %d", len(after.Connections), len(before.Connections))
	}
}

func TestSwitchWorkspaceNoOps(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)

	// Already active.
	if err := m.SwitchWorkspace(0); err != nil {
		t.Errorf("switch to active slot: %v", err)
	}
	// Out of range.
	if err := m.SwitchWorkspace(-1); err != nil {
		t.Errorf("switch to -1: %v", err)
	}
	if err := m.SwitchWorkspace(16); err != nil {
		t.Errorf("switch to 16: %v", err)
	}
	// Disabled target.
	if err := m.SwitchWorkspace(3); err != nil {
		t.Errorf("switch to disabled slot: %v", err)
	}

	if m.Active() != 0 {
		t.Errorf("active changed to %d", m.Active())
	}
	if len(g.UserNodes()) != 2 {
		t.Error("no-op switch must not touch the live graph")
	}
	slot0, _ := m.Slot(0)
	if slot0.Occupied {
		t.Error("no-op switch must not capture")
	}
}

func TestClearWorkspace(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)

	m.SetEnabled(1, true)
	m.SwitchWorkspace(1) // slot 0 now occupied, live graph empty

	if err := m.ClearWorkspace(0); err != nil {
		t.Fatalf("ClearWorkspace(0): %v", err)
	}
	slot0, _ := m.Slot(0)
	if slot0.Occupied || slot0.Data != nil {
		t.Error("slot 0 should be empty after clear")
	}

	// Clearing the active slot also clears the live graph.
	m.SwitchWorkspace(0) // empty slot, but capture fills slot 1
	buildSampleGraph(t, g)
	if err := m.ClearWorkspace(0); err != nil {
		t.Fatalf("ClearWorkspace(active): %v", err)
	}
	if len(g.UserNodes()) != 0 {
		t.Error("clearing the active slot must clear live user nodes")
	}

	if err := m.ClearWorkspace(99); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestDuplicateWorkspace(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)

	// Duplicating the active slot captures live.
	if err := m.DuplicateWorkspace(0, 5); err != nil {
		t.Fatalf("DuplicateWorkspace: %v", err)
	}
	slot5, _ := m.Slot(5)
	if !slot5.Occupied || !slot5.Enabled || slot5.Data == nil {
		t.Fatal("destination slot should be occupied and enabled")
	}
	if len(slot5.Data.Nodes) != 2 {
		t.Errorf("duplicated nodes = %d, want 2", len(slot5.Data.Nodes))
	}

	// Duplicating an empty source fails.
	if err := m.DuplicateWorkspace(9, 10); err == nil {
		t.Error("expected error duplicating an empty slot")
	}
	// Same src and dst is a no-op.
	if err := m.DuplicateWorkspace(5, 5); err != nil {
		t.Errorf("self duplicate: %v", err)
	}
}

func TestResetAll(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)
	m.SetEnabled(1, true)
	m.SwitchWorkspace(1)

	m.ResetAll()

	if m.Active() != 0 {
		t.Errorf("active = %d, want 0", m.Active())
	}
	if len(g.UserNodes()) != 0 {
		t.Error("live graph should be empty after reset")
	}
	for i := 0; i < MaxWorkspaces; i++ {
		slot, _ := m.Slot(i)
		if slot.Occupied {
			t.Errorf("slot %d still occupied after reset", i)
		}
		if slot.Enabled != (i == 0) {
			t.Errorf("slot %d enabled = %v after reset", i, slot.Enabled)
		}
	}
}

func TestWorkspaceStateRoundTrip(t *testing.T) {
	g, m := newWorkspaceFixture(t)
	buildSampleGraph(t, g)
	m.SetName(0, "verse")
	m.SetEnabled(2, true)

	state, err := m.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Active != 0 {
		t.Errorf("state active = %d", state.Active)
	}
	if !state.Slots[0].Occupied || state.Slots[0].Data == nil {
		t.Fatal("GetState must capture the active slot live")
	}

	// Restore into a fresh manager over a fresh graph.
	fresh := newPreparedGraph(t, 2, 2)
	m2 := NewWorkspaceManager(fresh, NewSerializer())
	if err := m2.RestoreState(state); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}

	if m2.Active() != 0 {
		t.Errorf("restored active = %d", m2.Active())
	}
	slot0, _ := m2.Slot(0)
	if slot0.Name != "verse" {
		t.Errorf("restored name = %q", slot0.Name)
	}
	if len(fresh.UserNodes()) != 2 {
		t.Errorf("restored live graph has %d user nodes, want 2", len(fresh.UserNodes()))
	}

	if err := m2.RestoreState(nil); err == nil {
		t.Error("expected error for nil state")
	}
	if err := m2.RestoreState(&WorkspaceState{Active: 77}); err == nil {
		t.Error("expected error for out-of-range active index")
	}
}

func TestSetEnabledGuards(t *testing.T) {
	_, m := newWorkspaceFixture(t)

	if err := m.SetEnabled(0, false); err == nil {
		t.Error("disabling the active slot should fail")
	}
	if err := m.SetEnabled(42, true); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
