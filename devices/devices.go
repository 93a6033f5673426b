// Package devices is a platform-neutral registry of the audio hardware
// the host can address. The host application feeds it from whatever
// discovery mechanism the platform offers; the graph only ever consumes
// channel counts and sample rates from here.
package devices

import (
	"sort"
	"sync"
)

// Device represents the common properties of any device
type Device struct {
	Name     string `json:"name"`
	UID      string `json:"uid"`
	IsOnline bool   `json:"isOnline"`
}

// AudioDevice represents a unified audio device with full capabilities
type AudioDevice struct {
	Device                     // Embedded base device
	InputChannelCount    int   `json:"inputChannelCount"`
	OutputChannelCount   int   `json:"outputChannelCount"`
	IsDefaultInput       bool  `json:"isDefaultInput"`
	IsDefaultOutput      bool  `json:"isDefaultOutput"`
	SupportedSampleRates []int `json:"supportedSampleRates"`
}

// Helper methods for capability checking
func (a AudioDevice) CanInput() bool {
	return a.InputChannelCount > 0
}

func (a AudioDevice) CanOutput() bool {
	return a.OutputChannelCount > 0
}

func (a AudioDevice) IsInputOutput() bool {
	return a.CanInput() && a.CanOutput()
}

// SupportsSampleRate reports whether the device advertises the given
// rate. An empty advertised list means the device accepts anything.
func (a AudioDevice) SupportsSampleRate(rate int) bool {
	if len(a.SupportedSampleRates) == 0 {
		return true
	}
	for _, r := range a.SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// AudioDevices represents a slice of AudioDevice with filter methods
type AudioDevices []AudioDevice

// Inputs returns only devices that can capture audio
func (devices AudioDevices) Inputs() AudioDevices {
	var inputs AudioDevices
	for _, device := range devices {
		if device.CanInput() {
			inputs = append(inputs, device)
		}
	}
	return inputs
}

// Outputs returns only devices that can play audio
func (devices AudioDevices) Outputs() AudioDevices {
	var outputs AudioDevices
	for _, device := range devices {
		if device.CanOutput() {
			outputs = append(outputs, device)
		}
	}
	return outputs
}

// Online returns only devices that are currently online/connected
func (devices AudioDevices) Online() AudioDevices {
	var onlineDevices AudioDevices
	for _, device := range devices {
		if device.IsOnline {
			onlineDevices = append(onlineDevices, device)
		}
	}
	return onlineDevices
}

// ByUID returns the device with the given UID, if present.
func (devices AudioDevices) ByUID(uid string) (AudioDevice, bool) {
	for _, device := range devices {
		if device.UID == uid {
			return device, true
		}
	}
	return AudioDevice{}, false
}

// DefaultOutput returns the device flagged as the system default output.
func (devices AudioDevices) DefaultOutput() (AudioDevice, bool) {
	for _, device := range devices {
		if device.IsDefaultOutput && device.IsOnline {
			return device, true
		}
	}
	return AudioDevice{}, false
}

// EventKind classifies a registry change.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
	EventChanged EventKind = "changed"
)

// Event is delivered to subscribers when the registry changes.
type Event struct {
	Kind   EventKind
	Device AudioDevice
}

// Registry tracks known audio devices and notifies subscribers of
// changes. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]AudioDevice
	subs    []chan Event
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]AudioDevice)}
}

// Upsert adds or updates a device keyed by UID and notifies subscribers.
func (r *Registry) Upsert(d AudioDevice) {
	r.mu.Lock()
	_, existed := r.devices[d.UID]
	r.devices[d.UID] = d
	subs := append([]chan Event(nil), r.subs...)
	r.mu.Unlock()

	kind := EventAdded
	if existed {
		kind = EventChanged
	}
	notify(subs, Event{Kind: kind, Device: d})
}

// Remove deletes a device by UID and notifies subscribers.
func (r *Registry) Remove(uid string) {
	r.mu.Lock()
	d, existed := r.devices[uid]
	delete(r.devices, uid)
	subs := append([]chan Event(nil), r.subs...)
	r.mu.Unlock()

	if existed {
		notify(subs, Event{Kind: EventRemoved, Device: d})
	}
}

// List returns all known devices sorted by name.
func (r *Registry) List() AudioDevices {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(AudioDevices, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe returns a channel receiving registry change events. Slow
// subscribers drop events rather than block the registry.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

func notify(subs []chan Event, ev Event) {
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
