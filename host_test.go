package stagegraph

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/onstage/stagegraph/devices"
)

func demoRegistry() *devices.Registry {
	r := devices.NewRegistry()
	r.Upsert(devices.AudioDevice{
		Device:             devices.Device{Name: "Test Interface", UID: "test-2x2", IsOnline: true},
		InputChannelCount:  2,
		OutputChannelCount: 2,
		IsDefaultOutput:    true,
	})
	return r
}

func newStartedHost(t *testing.T) *Host {
	t.Helper()
	registerTestEffects()

	cfg := DefaultConfig()
	cfg.SessionPath = filepath.Join(t.TempDir(), "session.json")

	h, err := NewHost("test-host", cfg, demoRegistry(), nil)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.Stop() })
	return h
}

func TestNewHostValidation(t *testing.T) {
	if _, err := NewHost("", DefaultConfig(), nil, nil); err == nil {
		t.Error("empty name accepted")
	}
	bad := DefaultConfig()
	bad.BlockSize = 0
	if _, err := NewHost("h", bad, nil, nil); err == nil {
		t.Error("invalid config accepted")
	}
}

func TestHostLifecycle(t *testing.T) {
	h := newStartedHost(t)

	if !h.IsRunning() {
		t.Error("host should be running")
	}
	if err := h.Start(); err == nil {
		t.Error("double start should fail")
	}
	if !h.Graph().IsPrepared() {
		t.Error("graph should be prepared after start")
	}
	in, out := h.Graph().HardwareChannels()
	if in != 2 || out != 2 {
		t.Errorf("hardware channels = %d/%d", in, out)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.IsRunning() {
		t.Error("host should be stopped")
	}
	if h.Graph().IsPrepared() {
		t.Error("graph should be released after stop")
	}
	if err := h.Stop(); err != nil {
		t.Errorf("double stop: %v", err)
	}
}

func TestHostConfiguredDeviceMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDeviceUID = "no-such-device"

	h, err := NewHost("test-host", cfg, demoRegistry(), nil)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if err := h.Start(); err == nil {
		h.Stop()
		t.Error("start should fail when the configured device is absent")
	}
}

func TestHostRender(t *testing.T) {
	h := newStartedHost(t)
	g := h.Graph()
	g.flushCountdown.Store(0)

	input := permanentID(t, g, TypeTagHardwareInput)
	output := permanentID(t, g, TypeTagHardwareOutput)
	if err := h.Control().AddConnection(Connection{SourceNode: input, SourceChannel: 0, DestNode: output, DestChannel: 0}); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}

	buf := NewBuffer(2, DefaultBlockSize)
	fillBuffer(buf, 0.4)
	h.Render(buf, nil)

	if peak := buf.Peak(0, DefaultBlockSize); peak == 0 {
		t.Error("expected signal through the rendered graph")
	}
}

func TestHostSessionRoundTrip(t *testing.T) {
	h := newStartedHost(t)

	if _, err := h.Control().AddEffect("TestPass", 120, 120); err != nil {
		t.Fatalf("AddEffect: %v", err)
	}
	if err := h.SaveSession(); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Wipe the live graph, then restore from disk.
	if err := h.Control().ResetWorkspaces(); err != nil {
		t.Fatalf("ResetWorkspaces: %v", err)
	}
	if len(h.Graph().UserNodes()) != 0 {
		t.Fatal("reset should empty the graph")
	}

	if err := h.LoadSession(); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if len(h.Graph().UserNodes()) != 1 {
		t.Errorf("restored user nodes = %d, want 1", len(h.Graph().UserNodes()))
	}
}

func TestHostSessionUnconfigured(t *testing.T) {
	registerTestEffects()
	h, err := NewHost("test-host", DefaultConfig(), demoRegistry(), nil)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if err := h.SaveSession(); err == nil {
		t.Error("expected error without a session path")
	}
	if err := h.LoadSession(); err == nil {
		t.Error("expected error without a session path")
	}
}

func TestDeviceMonitorReconcilesChannelChange(t *testing.T) {
	h := newStartedHost(t)

	// The tracked interface grows to 8 outputs; the monitor should
	// re-prepare the graph with the new shape.
	h.Devices().Upsert(devices.AudioDevice{
		Device:             devices.Device{Name: "Test Interface", UID: "test-2x2", IsOnline: true},
		InputChannelCount:  4,
		OutputChannelCount: 8,
		IsDefaultOutput:    true,
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		in, out := h.Graph().HardwareChannels()
		if in == 4 && out == 8 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("graph not re-prepared, channels = %d/%d", in, out)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The same device going offline suspends the graph.
	h.Devices().Upsert(devices.AudioDevice{
		Device:             devices.Device{Name: "Test Interface", UID: "test-2x2", IsOnline: false},
		InputChannelCount:  4,
		OutputChannelCount: 8,
	})

	deadline = time.Now().Add(2 * time.Second)
	for !h.Graph().IsSuspended() {
		if time.Now().After(deadline) {
			t.Fatal("graph not suspended after device went offline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
