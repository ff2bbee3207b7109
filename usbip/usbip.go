// Package usbip implements the subset of the USB/IP wire protocol needed to
// export an emulated device to a vhci host driver.
package usbip

import (
	"encoding/binary"
	"io"
)

// Wire constants (network byte order).
const (
	Version = 0x0111

	// Management commands
	OpReqDevlist = 0x8005
	OpRepDevlist = 0x0005
	OpReqImport  = 0x8003
	OpRepImport  = 0x0003

	// URB transfer commands
	CmdSubmitCode = 0x00000001
	CmdUnlinkCode = 0x00000002
	RetSubmitCode = 0x00000003
	RetUnlinkCode = 0x00000004

	// Directions used in usbip_header_basic.direction
	DirOut = 0x00000000
	DirIn  = 0x00000001
)

func writeBE(w io.Writer, fields ...any) error {
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// MgmtHeader is the 8-byte header for management ops (devlist/import).
type MgmtHeader struct {
	Version uint16
	Command uint16
	Status  uint32
}

func (h *MgmtHeader) Write(w io.Writer) error {
	return writeBE(w, h.Version, h.Command, h.Status)
}

// DevListReplyHeader follows MgmtHeader in OP_REP_DEVLIST.
type DevListReplyHeader struct {
	NDevices uint32
}

func (d *DevListReplyHeader) Write(w io.Writer) error {
	return writeBE(w, d.NDevices)
}

// ExportMeta carries USB/IP bus identity for an emulated device.
// Fixed-size arrays match the wire format.
type ExportMeta struct {
	Path     [256]byte
	USBBusId [32]byte
	BusId    uint32
	DevId    uint32
}

// ExportedDevice describes one exported device in devlist/import replies.
type ExportedDevice struct {
	ExportMeta
	Speed uint32

	IDVendor            uint16
	IDProduct           uint16
	BcdDevice           uint16
	BDeviceClass        uint8
	BDeviceSubClass     uint8
	BDeviceProtocol     uint8
	BConfigurationValue uint8
	BNumConfigurations  uint8
	BNumInterfaces      uint8

	Interfaces []InterfaceDesc
}

// InterfaceDesc is the class/subclass/protocol triple listed per interface
// in OP_REP_DEVLIST entries.
type InterfaceDesc struct {
	Class    uint8
	SubClass uint8
	Protocol uint8
}

func (d *ExportedDevice) writeCommon(w io.Writer) error {
	if _, err := w.Write(d.Path[:]); err != nil {
		return err
	}
	if _, err := w.Write(d.USBBusId[:]); err != nil {
		return err
	}
	if err := writeBE(w, d.BusId, d.DevId, d.Speed, d.IDVendor, d.IDProduct, d.BcdDevice); err != nil {
		return err
	}
	_, err := w.Write([]byte{
		d.BDeviceClass,
		d.BDeviceSubClass,
		d.BDeviceProtocol,
		d.BConfigurationValue,
		d.BNumConfigurations,
		d.BNumInterfaces,
	})
	return err
}

// WriteDevlist writes the device entry for OP_REP_DEVLIST, including the
// per-interface triplets.
func (d *ExportedDevice) WriteDevlist(w io.Writer) error {
	if err := d.writeCommon(w); err != nil {
		return err
	}
	for _, iface := range d.Interfaces {
		if _, err := w.Write([]byte{iface.Class, iface.SubClass, iface.Protocol, 0}); err != nil {
			return err
		}
	}
	return nil
}

// WriteImport writes the device entry for OP_REP_IMPORT (ends at bNumInterfaces).
func (d *ExportedDevice) WriteImport(w io.Writer) error {
	return d.writeCommon(w)
}

// HeaderBasic is common to all URB commands and replies.
type HeaderBasic struct {
	Command uint32
	Seqnum  uint32
	Devid   uint32
	Dir     uint32
	Ep      uint32
}

// RetSubmit is the reply header for USBIP_CMD_SUBMIT; 0x30 bytes before any
// payload.
type RetSubmit struct {
	Basic           HeaderBasic
	Status          int32
	ActualLength    uint32
	StartFrame      uint32
	NumberOfPackets uint32
	ErrorCount      uint32
	Padding         [8]byte
}

func (r *RetSubmit) Write(w io.Writer) error {
	if err := writeBE(w, r.Basic.Command, r.Basic.Seqnum, r.Basic.Devid, r.Basic.Dir, r.Basic.Ep,
		r.Status, r.ActualLength, r.StartFrame, r.NumberOfPackets, r.ErrorCount); err != nil {
		return err
	}
	_, err := w.Write(r.Padding[:])
	return err
}

// RetUnlink is the reply header for USBIP_CMD_UNLINK.
type RetUnlink struct {
	Basic   HeaderBasic
	Status  int32
	Padding [24]byte
}

func (r *RetUnlink) Write(w io.Writer) error {
	if err := writeBE(w, r.Basic.Command, r.Basic.Seqnum, r.Basic.Devid, r.Basic.Dir, r.Basic.Ep,
		r.Status); err != nil {
		return err
	}
	_, err := w.Write(r.Padding[:])
	return err
}

// ReadExactly fills buf from r or returns the first read error.
func ReadExactly(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
