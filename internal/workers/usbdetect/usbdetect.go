// Package usbdetect implements the USB mass-storage enumeration worker:
// it reports the file-backed mock devices named by USBSAS_MOCK_IN_DEV and
// USBSAS_MOCK_OUT_DEV as removable devices (it does not walk the USB
// bus), merged by the supervisor with
// configured networks and command destinations into the frontend's
// Devices response (spec §4.3 "Enumeration").
package usbdetect

import (
	"fmt"
	"os"

	"github.com/usbsas/usbsas-core/internal/descriptor"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

// Handler implements worker.Handler for usb_dev (enumeration role).
type Handler struct {
	Logger interfaces.Logger

	// Whitelist holds the configured USB topology paths. handleDevices
	// does not consult it: the mock devices it reports are listed
	// whether or not Whitelist is empty.
	Whitelist []string
}

func New(logger interfaces.Logger, whitelist []string) *Handler {
	return &Handler{Logger: logger, Whitelist: whitelist}
}

func (h *Handler) Name() string { return "usb_dev" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqDevices:
		return h.handleDevices(srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("usb_dev: unhandled kind %d", kind))
	}
}

func (h *Handler) handleDevices(srv *ipc.Server) error {
	var devs []ipc.DeviceInfo

	for _, env := range []string{"USBSAS_MOCK_IN_DEV", "USBSAS_MOCK_OUT_DEV"} {
		path := os.Getenv(env)
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		d := descriptor.Descriptor{Kind: descriptor.KindUSBDevice, DeviceID: env, Vendor: "usbsas", Model: "mock-device", Serial: path}
		devs = append(devs, ipc.DeviceInfo{
			ID:        fmt.Sprintf("%x", d.ID()),
			Vendor:    d.Vendor,
			Model:     d.Model,
			Serial:    d.Serial,
			SizeBytes: uint64(info.Size()),
			Removable: true,
		})
	}

	return srv.Reply(ipc.KindRespDevices, ipc.DevicesResp{Devices: devs})
}
