package usbsas

import (
	"testing"

	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/filter"
)

func TestStateTransitions(t *testing.T) {
	if !StateIdle.canMoveTo(StateEnumerating) {
		t.Error("Idle -> Enumerating should be legal")
	}
	if !StateIdle.canMoveTo(StateImaging) {
		t.Error("Idle -> Imaging should be legal")
	}
	if !StateIdle.canMoveTo(StateWiping) {
		t.Error("Idle -> Wiping should be legal")
	}
	if StateIdle.canMoveTo(StateTransferring) {
		t.Error("Idle -> Transferring should not be legal directly")
	}
	if StateIdle.canMoveTo(StateBrowsing) {
		t.Error("Idle -> Browsing should not be legal directly")
	}
}

func TestStateTransitionsFullPath(t *testing.T) {
	path := []State{
		StateIdle, StateEnumerating, StateSelecting, StateBrowsing,
		StateTransferring, StateReporting, StateDone, StateIdle,
	}
	for i := 0; i < len(path)-1; i++ {
		if !path[i].canMoveTo(path[i+1]) {
			t.Errorf("%s -> %s should be legal (full happy path)", path[i], path[i+1])
		}
	}
}

func TestStateTransitionsBrowsingLoop(t *testing.T) {
	if !StateBrowsing.canMoveTo(StateBrowsing) {
		t.Error("Browsing -> Browsing (further directory navigation) should be legal")
	}
}

func TestStateTransitionsErrorPaths(t *testing.T) {
	if !StateTransferring.canMoveTo(StateError) {
		t.Error("Transferring -> Error should be legal")
	}
	if !StateError.canMoveTo(StateIdle) {
		t.Error("Error -> Idle should be legal")
	}
	if !StateImaging.canMoveTo(StateError) {
		t.Error("Imaging -> Error should be legal")
	}
	if !StateWiping.canMoveTo(StateError) {
		t.Error("Wiping -> Error should be legal")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:         "idle",
		StateEnumerating:  "enumerating",
		StateSelecting:    "selecting",
		StateBrowsing:     "browsing",
		StateTransferring: "transferring",
		StateReporting:    "reporting",
		StateImaging:      "imaging",
		StateWiping:       "wiping",
		StateDone:         "done",
		StateError:        "error",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewTransfer(t *testing.T) {
	src := descriptor.Descriptor{Kind: descriptor.KindUSBDevice, DeviceID: "sda"}
	dst := descriptor.Descriptor{Kind: descriptor.KindImageFile, Path: "/tmp/out.img"}

	tr := newTransfer("deadbeef", src, dst, "ntfs", filter.Set{})
	if tr.ID != "deadbeef" {
		t.Errorf("expected ID=deadbeef, got %s", tr.ID)
	}
	if tr.Source.DeviceID != "sda" {
		t.Errorf("expected Source.DeviceID=sda, got %s", tr.Source.DeviceID)
	}
	if tr.rb == nil {
		t.Error("expected report builder to be initialised")
	}
}

func TestClassifyDestination(t *testing.T) {
	cases := []struct {
		kind descriptor.Kind
		want destinationKind
	}{
		{descriptor.KindUSBDevice, destUSB},
		{descriptor.KindImageFile, destUSB},
		{descriptor.KindNetworkUpload, destNet},
		{descriptor.KindCommand, destCmd},
	}
	for _, c := range cases {
		got, err := classifyDestination(descriptor.Descriptor{Kind: c.kind})
		if err != nil {
			t.Errorf("classifyDestination(%s) returned error: %v", c.kind, err)
		}
		if got != c.want {
			t.Errorf("classifyDestination(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestClassifyDestinationUnknown(t *testing.T) {
	_, err := classifyDestination(descriptor.Descriptor{Kind: descriptor.KindNull})
	if err == nil {
		t.Error("expected error classifying a null-kind destination")
	}
}
