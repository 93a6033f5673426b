package stagegraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/onstage/stagegraph/devices"
	"github.com/onstage/stagegraph/logging"
	"github.com/onstage/stagegraph/media"
)

// DeviceMonitor watches the device registry and reconciles the graph
// against hardware changes. When the tracked output device changes shape
// or disappears, the monitor suspends or re-prepares the graph through
// the dispatcher, so the rebuild happens on the control thread like any
// other mutation.
type DeviceMonitor struct {
	registry   *devices.Registry
	dispatcher *Dispatcher
	errors     ErrorHandler

	mu        sync.RWMutex
	isRunning bool
	trackUID  string

	sampleRate float64
	blockSize  int
	player     media.Player

	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewDeviceMonitor creates a monitor over the given registry. The
// sample rate, block size, and player are reused for every re-prepare.
func NewDeviceMonitor(registry *devices.Registry, dispatcher *Dispatcher, errors ErrorHandler,
	sampleRate float64, blockSize int, player media.Player) *DeviceMonitor {
	if errors == nil {
		errors = NewDefaultErrorHandler()
	}
	return &DeviceMonitor{
		registry:   registry,
		dispatcher: dispatcher,
		errors:     errors,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		player:     player,
		log:        logging.Component("devicemonitor"),
	}
}

// TrackDevice selects the device UID whose changes drive graph rebuilds.
func (dm *DeviceMonitor) TrackDevice(uid string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.trackUID = uid
}

// Start begins watching registry events.
func (dm *DeviceMonitor) Start() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.isRunning {
		return fmt.Errorf("device monitor is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	dm.cancel = cancel
	dm.isRunning = true

	events := dm.registry.Subscribe()
	go dm.monitorLoop(ctx, events)

	return nil
}

// Stop halts monitoring.
func (dm *DeviceMonitor) Stop() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if !dm.isRunning {
		return nil // Already stopped
	}

	dm.cancel()
	dm.isRunning = false
	return nil
}

// IsRunning returns whether monitoring is active.
func (dm *DeviceMonitor) IsRunning() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.isRunning
}

func (dm *DeviceMonitor) monitorLoop(ctx context.Context, events <-chan devices.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			dm.handleEvent(ev)
		}
	}
}

func (dm *DeviceMonitor) handleEvent(ev devices.Event) {
	dm.mu.RLock()
	tracked := dm.trackUID
	sampleRate := dm.sampleRate
	blockSize := dm.blockSize
	player := dm.player
	dm.mu.RUnlock()

	if tracked == "" || ev.Device.UID != tracked {
		return
	}

	switch ev.Kind {
	case devices.EventRemoved:
		dm.log.Warn().Str("uid", ev.Device.UID).Msg("tracked device removed, suspending")
		if err := dm.dispatcher.Suspend(); err != nil {
			dm.errors.HandleError(fmt.Errorf("suspend after device removal: %w", err))
		}

	case devices.EventAdded, devices.EventChanged:
		if !ev.Device.IsOnline {
			dm.log.Warn().Str("uid", ev.Device.UID).Msg("tracked device offline, suspending")
			if err := dm.dispatcher.Suspend(); err != nil {
				dm.errors.HandleError(fmt.Errorf("suspend after device offline: %w", err))
			}
			return
		}

		dm.log.Info().
			Str("uid", ev.Device.UID).
			Int("in", ev.Device.InputChannelCount).
			Int("out", ev.Device.OutputChannelCount).
			Msg("tracked device changed, re-preparing")

		// Prepare arms the post-restart silence flush itself.
		err := dm.dispatcher.Prepare(sampleRate, blockSize,
			ev.Device.InputChannelCount, ev.Device.OutputChannelCount, player)
		if err != nil {
			dm.errors.HandleError(fmt.Errorf("re-prepare after device change: %w", err))
		}
	}
}
