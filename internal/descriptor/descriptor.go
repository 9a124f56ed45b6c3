// Package descriptor implements the tagged-union source/destination
// descriptor every transfer is built from (spec §4.3), plus the stable,
// content-derived identifiers used to name a transfer and its report
// without round-tripping through a database sequence.
package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"
)

// Kind discriminates which concrete source or destination a Descriptor
// names. Exactly one of the fields below is meaningful for a given Kind
// (spec §4.3: "tagged union, never both arms populated").
type Kind int

const (
	KindUnknown Kind = iota
	KindUSBDevice
	KindNetworkUpload
	KindImageFile
	KindNull    // /dev/null-equivalent destination, used by Wipe
	KindCommand // destination command, args may contain %SOURCE_FILE% (spec §3)
)

func (k Kind) String() string {
	switch k {
	case KindUSBDevice:
		return "usb_device"
	case KindNetworkUpload:
		return "network_upload"
	case KindImageFile:
		return "image_file"
	case KindNull:
		return "null"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Descriptor names one endpoint of a transfer: the device a file tree is
// read from, or the device/network/image a file tree is written to.
type Descriptor struct {
	Kind Kind

	// USBDevice
	DeviceID string
	Vendor   string
	Model    string
	Serial   string

	// NetworkUpload
	URL string

	// ImageFile
	Path string

	// Command
	CommandBin  string
	CommandArgs []string
	Title       string
	Description string
}

// ID returns a stable 64-bit identifier derived only from the fields that
// make two descriptors the "same" endpoint. It never depends on process
// state (PID, timestamp, counter) so the same physical device or path
// always yields the same ID across transfers, which report storage and
// log correlation both rely on.
func (d Descriptor) ID() uint64 {
	h := xxhash.New64()
	var kindBuf [8]byte
	binary.LittleEndian.PutUint64(kindBuf[:], uint64(d.Kind))
	h.Write(kindBuf[:])
	switch d.Kind {
	case KindUSBDevice:
		fmt.Fprintf(h, "%s|%s|%s|%s", d.DeviceID, d.Vendor, d.Model, d.Serial)
	case KindNetworkUpload:
		fmt.Fprintf(h, "%s", d.URL)
	case KindImageFile:
		fmt.Fprintf(h, "%s", d.Path)
	case KindCommand:
		fmt.Fprintf(h, "%s|%v", d.CommandBin, d.CommandArgs)
	}
	return h.Sum64()
}

// NewTransferID derives a stable transfer identifier from its source and
// destination descriptors, formatted as a short hex string suitable for
// both log lines and the local report store's key.
func NewTransferID(src, dst Descriptor) string {
	h := xxhash.New64()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], src.ID())
	binary.LittleEndian.PutUint64(buf[8:16], dst.ID())
	h.Write(buf[:])
	return fmt.Sprintf("%016x", h.Sum64())
}
