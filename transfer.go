package usbsas

import (
	"fmt"

	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/filter"
	"github.com/usbsas/usbsas-core/internal/report"
)

// State is one node of the top-level transfer state machine (spec §4.3):
// Idle -> Enumerating -> Selecting(src,dst) -> Browsing -> Transferring ->
// Reporting -> Done, with side branches Idle -> Imaging -> Done and
// Idle -> Wiping -> Done.
type State int

const (
	StateIdle State = iota
	StateEnumerating
	StateSelecting
	StateBrowsing
	StateTransferring
	StateReporting
	StateImaging
	StateWiping
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateSelecting:
		return "selecting"
	case StateBrowsing:
		return "browsing"
	case StateTransferring:
		return "transferring"
	case StateReporting:
		return "reporting"
	case StateImaging:
		return "imaging"
	case StateWiping:
		return "wiping"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions lists, for every state, the states a frontend request may
// legally move the supervisor to next. A request whose target state isn't
// listed for the supervisor's current state is rejected with an Error
// response and leaves the state unchanged (spec §4.3: "Any frontend
// request invalid in the current state yields an Error and does not
// change state").
var transitions = map[State]map[State]bool{
	StateIdle:         {StateEnumerating: true, StateImaging: true, StateWiping: true},
	StateEnumerating:  {StateSelecting: true, StateIdle: true},
	StateSelecting:    {StateBrowsing: true, StateIdle: true},
	StateBrowsing:     {StateBrowsing: true, StateTransferring: true, StateIdle: true},
	StateTransferring: {StateReporting: true, StateError: true},
	StateReporting:    {StateDone: true},
	StateImaging:      {StateDone: true, StateError: true},
	StateWiping:       {StateDone: true, StateError: true},
	StateDone:         {StateIdle: true},
	StateError:        {StateIdle: true},
}

func (s State) canMoveTo(next State) bool {
	return transitions[s][next]
}

// Transfer is the bookkeeping for one in-flight activity (spec §3): an id
// derived from its source/destination descriptors, those descriptors, the selection
// the frontend chose, and the report accumulator its pipeline choreography
// fills in as it runs. Created at InitTransfer, destroyed once its Report
// has been returned (spec §3: "created at transfer start and destroyed at
// transfer completion").
type Transfer struct {
	ID          string
	Source      descriptor.Descriptor
	Destination descriptor.Descriptor
	FsType      string

	Selection []string
	Filters   filter.Set

	rb *report.Builder
}

func newTransfer(id string, src, dst descriptor.Descriptor, fstype string, filters filter.Set) *Transfer {
	return &Transfer{
		ID:          id,
		Source:      src,
		Destination: dst,
		FsType:      fstype,
		Filters:     filters,
		rb:          report.NewBuilder(id),
	}
}

// sanitised is the hook for dropping fields spec §4.8 calls out as
// secrets (Kerberos service principals) before a descriptor is embedded in
// a transfer report. No descriptor variant carries such a field, so it
// returns d unchanged.
func sanitised(d descriptor.Descriptor) descriptor.Descriptor {
	return d
}

// destinationKind classifies which of the three pipeline choreographies
// (spec §4.4.1 Stage C) a transfer's destination routes to.
type destinationKind int

const (
	destUnknown destinationKind = iota
	destUSB
	destNet
	destCmd
)

func classifyDestination(d descriptor.Descriptor) (destinationKind, error) {
	switch d.Kind {
	case descriptor.KindUSBDevice, descriptor.KindImageFile:
		return destUSB, nil
	case descriptor.KindNetworkUpload:
		return destNet, nil
	case descriptor.KindCommand:
		return destCmd, nil
	default:
		return destUnknown, fmt.Errorf("transfer: destination descriptor has no pipeline (kind %s)", d.Kind)
	}
}
