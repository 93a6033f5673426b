package devices

import (
	"testing"
	"time"
)

func sampleDevices() AudioDevices {
	return AudioDevices{
		{
			Device:             Device{Name: "Scarlett 18i20", UID: "scarlett", IsOnline: true},
			InputChannelCount:  18,
			OutputChannelCount: 20,
		},
		{
			Device:             Device{Name: "Built-in Output", UID: "builtin-out", IsOnline: true},
			OutputChannelCount: 2,
			IsDefaultOutput:    true,
		},
		{
			Device:            Device{Name: "USB Mic", UID: "usb-mic", IsOnline: false},
			InputChannelCount: 1,
		},
	}
}

func TestFilters(t *testing.T) {
	devs := sampleDevices()

	if n := len(devs.Inputs()); n != 2 {
		t.Errorf("Inputs = %d, want 2", n)
	}
	if n := len(devs.Outputs()); n != 2 {
		t.Errorf("Outputs = %d, want 2", n)
	}
	if n := len(devs.Online()); n != 2 {
		t.Errorf("Online = %d, want 2", n)
	}

	d, ok := devs.ByUID("scarlett")
	if !ok || d.Name != "Scarlett 18i20" {
		t.Errorf("ByUID = %+v, %v", d, ok)
	}
	if _, ok := devs.ByUID("nope"); ok {
		t.Error("ByUID should miss unknown UID")
	}

	def, ok := devs.DefaultOutput()
	if !ok || def.UID != "builtin-out" {
		t.Errorf("DefaultOutput = %+v, %v", def, ok)
	}
}

func TestSupportsSampleRate(t *testing.T) {
	d := AudioDevice{SupportedSampleRates: []int{44100, 48000}}
	if !d.SupportsSampleRate(48000) {
		t.Error("48000 should be supported")
	}
	if d.SupportsSampleRate(96000) {
		t.Error("96000 should not be supported")
	}

	open := AudioDevice{}
	if !open.SupportsSampleRate(192000) {
		t.Error("empty advertised list accepts any rate")
	}
}

func TestRegistryUpsertRemoveList(t *testing.T) {
	r := NewRegistry()
	for _, d := range sampleDevices() {
		r.Upsert(d)
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List = %d devices, want 3", len(list))
	}
	// Sorted by name.
	if list[0].Name != "Built-in Output" {
		t.Errorf("first device = %s", list[0].Name)
	}

	r.Remove("usb-mic")
	if len(r.List()) != 2 {
		t.Error("Remove did not shrink the list")
	}
	r.Remove("usb-mic") // absent, no-op
	if len(r.List()) != 2 {
		t.Error("removing an absent device changed the list")
	}
}

func TestRegistryEvents(t *testing.T) {
	r := NewRegistry()
	events := r.Subscribe()

	dev := sampleDevices()[0]
	r.Upsert(dev)

	select {
	case ev := <-events:
		if ev.Kind != EventAdded || ev.Device.UID != dev.UID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no added event")
	}

	dev.IsOnline = false
	r.Upsert(dev)
	select {
	case ev := <-events:
		if ev.Kind != EventChanged || ev.Device.IsOnline {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no changed event")
	}

	r.Remove(dev.UID)
	select {
	case ev := <-events:
		if ev.Kind != EventRemoved {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no removed event")
	}
}
