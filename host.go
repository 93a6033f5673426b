package stagegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"

	"github.com/onstage/stagegraph/devices"
	"github.com/onstage/stagegraph/logging"
	"github.com/onstage/stagegraph/media"
	"github.com/onstage/stagegraph/session"
)

// Host assembles the full effects host: graph, serializer, workspaces,
// dispatcher, device monitor, and session persistence. The embedding
// application feeds it hardware blocks via Render and device events via
// the registry; everything else goes through the host's control surface,
// which funnels into the dispatcher.
type Host struct {
	id   uuid.UUID
	name string

	mu        sync.RWMutex
	isRunning bool

	cfg        Config
	registry   *devices.Registry
	graph      *Graph
	serializer *Serializer
	workspaces *WorkspaceManager
	dispatcher *Dispatcher
	monitor    *DeviceMonitor
	errors     ErrorHandler
	player     media.Player
	store      *session.Store

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewHost creates a stopped host from the given configuration. The
// player may be nil; playback then renders silence.
func NewHost(name string, cfg Config, registry *devices.Registry, player media.Player) (*Host, error) {
	if name == "" {
		return nil, fmt.Errorf("host name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		registry = devices.NewRegistry()
	}
	if player == nil {
		player = media.NullPlayer{}
	}

	errors := NewDefaultErrorHandler()
	graph := NewGraph()
	graph.SetFlushBlocks(cfg.FlushBlocks)
	serializer := NewSerializer()
	workspaces := NewWorkspaceManager(graph, serializer)
	dispatcher := NewDispatcher(graph, workspaces, errors)
	monitor := NewDeviceMonitor(registry, dispatcher, errors, cfg.SampleRate, cfg.BlockSize, player)

	ctx, cancel := context.WithCancel(context.Background())

	h := &Host{
		id:         uuid.New(),
		name:       name,
		cfg:        cfg,
		registry:   registry,
		graph:      graph,
		serializer: serializer,
		workspaces: workspaces,
		dispatcher: dispatcher,
		monitor:    monitor,
		errors:     errors,
		player:     player,
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Component("stagehost"),
	}
	if cfg.SessionPath != "" {
		h.store = session.NewStore(cfg.SessionPath)
	}
	return h, nil
}

// ID returns the host's identity.
func (h *Host) ID() uuid.UUID { return h.id }

// Name returns the host's display name.
func (h *Host) Name() string { return h.name }

// Graph exposes the graph for read-only canvas queries and the render
// callback. Structural mutation goes through the Control dispatcher.
func (h *Host) Graph() *Graph { return h.graph }

// Control returns the dispatcher, the host's only mutation surface.
func (h *Host) Control() *Dispatcher { return h.dispatcher }

// Workspaces exposes read-only workspace bookkeeping. Switching and
// clearing go through the Control dispatcher.
func (h *Host) Workspaces() *WorkspaceManager { return h.workspaces }

// Devices returns the device registry.
func (h *Host) Devices() *devices.Registry { return h.registry }

// Start resolves the configured output device, prepares the graph, and
// begins watching for device changes.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isRunning {
		return fmt.Errorf("host is already running")
	}

	dev, err := h.resolveOutputDevice()
	if err != nil {
		return err
	}

	if err := h.dispatcher.Start(); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}

	if err := h.dispatcher.Prepare(h.cfg.SampleRate, h.cfg.BlockSize,
		dev.InputChannelCount, dev.OutputChannelCount, h.player); err != nil {
		h.dispatcher.Stop()
		return fmt.Errorf("preparing graph: %w", err)
	}

	h.monitor.TrackDevice(dev.UID)
	if err := h.monitor.Start(); err != nil {
		h.dispatcher.Stop()
		return fmt.Errorf("starting device monitor: %w", err)
	}

	h.isRunning = true
	h.log.Info().
		Str("device", dev.Name).
		Float64("sampleRate", h.cfg.SampleRate).
		Int("blockSize", h.cfg.BlockSize).
		Msg("host started")
	return nil
}

// Stop halts monitoring and the dispatcher and tears the graph down.
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isRunning {
		return nil // Already stopped
	}

	h.monitor.Stop()
	h.graph.Suspend()
	h.dispatcher.Stop()
	h.graph.ReleaseResources()
	h.cancel()
	h.isRunning = false

	h.log.Info().Msg("host stopped")
	return nil
}

// IsRunning reports whether the host has been started.
func (h *Host) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isRunning
}

// Render is the per-block audio entry point the hardware callback
// invokes. It forwards straight to the graph.
func (h *Host) Render(buf *Buffer, midiMessages []midi.Message) {
	h.graph.ProcessBlock(buf, midiMessages)
}

// resolveOutputDevice picks the configured UID if present and online,
// otherwise the system default output, otherwise a headless fallback
// with no hardware channels.
func (h *Host) resolveOutputDevice() (devices.AudioDevice, error) {
	list := h.registry.List()

	if h.cfg.OutputDeviceUID != "" {
		dev, ok := list.ByUID(h.cfg.OutputDeviceUID)
		if !ok {
			return devices.AudioDevice{}, fmt.Errorf("configured output device %q not found", h.cfg.OutputDeviceUID)
		}
		if !dev.IsOnline {
			return devices.AudioDevice{}, fmt.Errorf("configured output device %q is offline", h.cfg.OutputDeviceUID)
		}
		return dev, nil
	}

	if dev, ok := list.DefaultOutput(); ok {
		return dev, nil
	}

	h.log.Warn().Msg("no output device available, running headless")
	return devices.AudioDevice{}, nil
}

// SaveSession captures workspace state on the control thread and
// writes the session file.
func (h *Host) SaveSession() error {
	if h.store == nil {
		return fmt.Errorf("no session path configured")
	}

	wsState, err := h.dispatcher.GetWorkspaceState()
	if err != nil {
		return fmt.Errorf("capturing workspaces: %w", err)
	}
	raw, err := json.Marshal(wsState)
	if err != nil {
		return fmt.Errorf("encoding workspaces: %w", err)
	}

	state := session.State{
		SavedAt:         time.Now(),
		SampleRate:      h.cfg.SampleRate,
		BlockSize:       h.cfg.BlockSize,
		OutputDeviceUID: h.cfg.OutputDeviceUID,
		InputDeviceUID:  h.cfg.InputDeviceUID,
		Workspaces:      raw,
	}
	return h.store.Save(&state)
}

// LoadSession reads the session file and restores workspace state. The
// graph must be prepared.
func (h *Host) LoadSession() error {
	if h.store == nil {
		return fmt.Errorf("no session path configured")
	}

	var state session.State
	if err := h.store.Load(&state); err != nil {
		return err
	}

	if len(state.Workspaces) > 0 {
		var wsState WorkspaceState
		if err := json.Unmarshal(state.Workspaces, &wsState); err != nil {
			return fmt.Errorf("decoding workspaces: %w", err)
		}
		if err := h.dispatcher.RestoreWorkspaceState(&wsState); err != nil {
			return fmt.Errorf("restoring workspaces: %w", err)
		}
	}
	return nil
}
