// Package usbtransport implements the USB Bulk-Only Transport (BOT) and a
// minimal SCSI command set the device_reader and block_writer workers
// need to read/write a mass-storage device's sectors directly, bypassing
// any kernel block driver (spec §4.4: "talks to the device over USB
// directly rather than through the kernel's block layer").
package usbtransport

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/usbsas/usbsas-core/internal/interfaces"
)

const (
	classMassStorage = 0x08
	subclassSCSI     = 0x06
	protocolBBB      = 0x50 // Bulk-Only Transport

	cbwSignature = 0x43425355
	csbSignature = 0x53425355
	cbwLength    = 31

	scsiRead10  = 0x28
	scsiWrite10 = 0x2A
	scsiInquiry = 0x12
)

// Device is one opened USB mass-storage endpoint, exposing it as an
// interfaces.Backend so the rest of usbsas-core reads/writes it exactly
// like any other backend (spec §4.4: device_reader and block_writer both
// drive a Backend, never USB specifics directly).
type Device struct {
	ctx      *gousb.Context
	dev      *gousb.Device
	cfg      *gousb.Config
	intf     *gousb.Interface
	epOut    *gousb.OutEndpoint
	epIn     *gousb.InEndpoint
	sectorSz int64
	sectors  int64
	tag      uint32
	timeout  time.Duration
}

// Open claims the first mass-storage interface on the device identified
// by vid/pid, following the same Context -> OpenDeviceWithVIDPID ->
// Config -> Interface -> endpoints chain used throughout the pack for raw
// USB access.
func Open(vid, pid uint16, timeout time.Duration) (*Device, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: open device %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: device %04x:%04x not found", vid, pid)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: set config: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: claim interface: %w", err)
	}

	var epOut *gousb.OutEndpoint
	var epIn *gousb.InEndpoint
	for _, epDesc := range intf.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			epOut, err = intf.OutEndpoint(epDesc.Number)
		} else {
			epIn, err = intf.InEndpoint(epDesc.Number)
		}
		if err != nil {
			intf.Close()
			cfg.Close()
			dev.Close()
			ctx.Close()
			return nil, fmt.Errorf("usbtransport: open endpoint: %w", err)
		}
	}
	if epOut == nil || epIn == nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbtransport: device exposes no bulk in/out endpoint pair")
	}

	d := &Device{ctx: ctx, dev: dev, cfg: cfg, intf: intf, epOut: epOut, epIn: epIn, sectorSz: 512, timeout: timeout}
	if err := d.inquireCapacity(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return nil
}

func (d *Device) Size() int64 { return d.sectors * d.sectorSz }

// Flush is a no-op for raw USB mass storage: every WriteAt is already a
// synchronous SCSI WRITE(10) command.
func (d *Device) Flush() error { return nil }

func (d *Device) nextTag() uint32 {
	d.tag++
	return d.tag
}

// buildCBW constructs a 31-byte Command Block Wrapper for a 10-byte SCSI
// command descriptor block, per the USB Bulk-Only Transport spec.
func (d *Device) buildCBW(cdb []byte, dataLen uint32, dataIn bool) []byte {
	cbw := make([]byte, cbwLength)
	binary.LittleEndian.PutUint32(cbw[0:4], cbwSignature)
	binary.LittleEndian.PutUint32(cbw[4:8], d.nextTag())
	binary.LittleEndian.PutUint32(cbw[8:12], dataLen)
	if dataIn {
		cbw[12] = 0x80
	}
	cbw[13] = 0 // LUN 0
	cbw[14] = byte(len(cdb))
	copy(cbw[15:], cdb)
	return cbw
}

func (d *Device) sendCommand(ctx context.Context, cdb []byte, dataLen uint32, dataIn bool, data []byte) error {
	cbw := d.buildCBW(cdb, dataLen, dataIn)
	if _, err := d.epOut.WriteContext(ctx, cbw); err != nil {
		return fmt.Errorf("usbtransport: write CBW: %w", err)
	}
	if dataLen > 0 {
		if dataIn {
			if _, err := d.epIn.ReadContext(ctx, data); err != nil {
				return fmt.Errorf("usbtransport: read data stage: %w", err)
			}
		} else {
			if _, err := d.epOut.WriteContext(ctx, data); err != nil {
				return fmt.Errorf("usbtransport: write data stage: %w", err)
			}
		}
	}
	csw := make([]byte, 13)
	if _, err := d.epIn.ReadContext(ctx, csw); err != nil {
		return fmt.Errorf("usbtransport: read CSW: %w", err)
	}
	if binary.LittleEndian.Uint32(csw[0:4]) != csbSignature {
		return fmt.Errorf("usbtransport: bad CSW signature")
	}
	if status := csw[12]; status != 0 {
		return fmt.Errorf("usbtransport: command failed, CSW status %d", status)
	}
	return nil
}

func (d *Device) inquireCapacity() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	cdb := make([]byte, 10)
	cdb[0] = 0x25 // READ CAPACITY(10)
	resp := make([]byte, 8)
	if err := d.sendCommand(ctx, cdb, uint32(len(resp)), true, resp); err != nil {
		return fmt.Errorf("usbtransport: read capacity: %w", err)
	}
	lastLBA := binary.BigEndian.Uint32(resp[0:4])
	blockLen := binary.BigEndian.Uint32(resp[4:8])
	d.sectors = int64(lastLBA) + 1
	d.sectorSz = int64(blockLen)
	return nil
}

// ReadAt reads len(p) bytes starting at byte offset off, rounding to
// whole sectors as SCSI READ(10) requires.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	startLBA := uint32(off / d.sectorSz)
	numSectors := uint16((int64(len(p)) + d.sectorSz - 1) / d.sectorSz)

	cdb := make([]byte, 10)
	cdb[0] = scsiRead10
	binary.BigEndian.PutUint32(cdb[2:6], startLBA)
	binary.BigEndian.PutUint16(cdb[7:9], numSectors)

	buf := p
	if int64(len(p)) < int64(numSectors)*d.sectorSz {
		buf = make([]byte, int64(numSectors)*d.sectorSz)
	}
	if err := d.sendCommand(ctx, cdb, uint32(len(buf)), true, buf); err != nil {
		return 0, fmt.Errorf("usbtransport: read(10) lba=%d: %w", startLBA, err)
	}
	n := copy(p, buf)
	return n, nil
}

// WriteAt writes len(p) bytes starting at byte offset off via SCSI
// WRITE(10). off and len(p) must already be sector-aligned; block_writer
// is responsible for that alignment (spec §4.5: sectors are the unit of
// work end to end).
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if off%d.sectorSz != 0 || int64(len(p))%d.sectorSz != 0 {
		return 0, fmt.Errorf("usbtransport: write(10) requires sector-aligned offset/length")
	}
	startLBA := uint32(off / d.sectorSz)
	numSectors := uint16(int64(len(p)) / d.sectorSz)

	cdb := make([]byte, 10)
	cdb[0] = scsiWrite10
	binary.BigEndian.PutUint32(cdb[2:6], startLBA)
	binary.BigEndian.PutUint16(cdb[7:9], numSectors)

	if err := d.sendCommand(ctx, cdb, uint32(len(p)), false, p); err != nil {
		return 0, fmt.Errorf("usbtransport: write(10) lba=%d: %w", startLBA, err)
	}
	return len(p), nil
}

var _ interfaces.Backend = (*Device)(nil)
