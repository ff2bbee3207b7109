// Package usb implements the USB/IP server that exports emulated devices to
// a vhci host driver.
package usb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/9names/xrecv/internal/log"
	"github.com/9names/xrecv/usb"
	"github.com/9names/xrecv/usbip"
	"github.com/9names/xrecv/virtualbus"
)

const (
	// USB standard request codes
	usbReqGetStatus        = 0x00
	usbReqSetAddress       = 0x05
	usbReqGetDescriptor    = 0x06
	usbReqGetConfiguration = 0x08
	usbReqSetConfiguration = 0x09

	// USB request types (bmRequestType)
	usbReqTypeStandardToDevice   = 0x00
	usbReqTypeStandardFromDevice = 0x80

	// bmRequestType type field
	usbReqTypeMask     = 0x60
	usbReqTypeStandard = 0x00

	// USB configuration values
	usbConfigValueDefault   = 1
	usbConfigAttrBusPowered = 0x80
	usbConfigMaxPower250mA  = 125 // in units of 2mA

	// URB header field offsets
	urbHdrSize          = 0x30
	urbHdrOffsetCommand = 0x00
	urbHdrOffsetSeqnum  = 0x04
	urbHdrOffsetDevid   = 0x08
	urbHdrOffsetDir     = 0x0c
	urbHdrOffsetEp      = 0x10
	urbHdrOffsetUnlink  = 0x14
	urbHdrOffsetLength  = 0x18
	urbHdrOffsetSetup   = 0x28

	headerPeekSize = 8
	busIDSize      = 32

	errConnReset = -104 // -ECONNRESET
)

type Server struct {
	config    *ServerConfig
	logger    *slog.Logger
	rawLogger log.RawLogger
	busses    map[uint32]*virtualbus.VirtualBus
	busesMu   sync.Mutex
	ready     chan struct{}
	readyOnce sync.Once
	ln        net.Listener
}

func New(config ServerConfig, logger *slog.Logger, rawLogger log.RawLogger) *Server {
	return &Server{
		config:    &config,
		logger:    logger,
		rawLogger: rawLogger,
		busses:    make(map[uint32]*virtualbus.VirtualBus),
		ready:     make(chan struct{}),
	}
}

// AddBus registers a bus with the server. If the bus number is already
// present, an error is returned.
func (s *Server) AddBus(bus *virtualbus.VirtualBus) error {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	if bus == nil {
		return fmt.Errorf("bus is nil")
	}
	if _, ok := s.busses[bus.BusID()]; ok {
		return fmt.Errorf("bus %d already registered", bus.BusID())
	}
	s.busses[bus.BusID()] = bus
	return nil
}

// ListenAndServe starts the USB/IP server and handles incoming connections.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("USB/IP server listening", "addr", s.config.Addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("USB/IP server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Client connected", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				if isClientDisconnect(err) {
					s.logger.Info("Client disconnected", "error", err)
				} else {
					s.logger.Error("Connection handler error", "error", err)
				}
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has bound its
// listen address and accepts connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Close stops the USB server by closing its listener.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// ListenAddr returns the bound listen address, or the configured address
// before the listener is up.
func (s *Server) ListenAddr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.config.Addr
}

// GetListenPort extracts the port number from the server's listen address.
func (s *Server) GetListenPort() uint16 {
	_, portStr, err := net.SplitHostPort(s.config.Addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// --

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	conn = &logConn{Conn: conn, s: s}
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	// Peek first 8 bytes to determine management op or URB stream.
	var hdrBuf [headerPeekSize]byte
	if err := usbip.ReadExactly(conn, hdrBuf[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	ver := binary.BigEndian.Uint16(hdrBuf[0:2])
	code := binary.BigEndian.Uint16(hdrBuf[2:4])

	if ver == usbip.Version && (code == usbip.OpReqDevlist || code == usbip.OpReqImport) {
		switch code {
		case usbip.OpReqDevlist:
			s.logger.Info("OP_REQ_DEVLIST")
			return s.handleDevList(conn)
		case usbip.OpReqImport:
			s.logger.Info("OP_REQ_IMPORT")
			dev, err := s.handleImport(conn)
			if err != nil {
				return fmt.Errorf("handle import: %w", err)
			}
			return s.handleUrbStream(conn, dev)
		}
	}

	return fmt.Errorf("protocol violation: client sent URB data without OP_REQ_IMPORT")
}

func exportedDevice(meta usbip.ExportMeta, desc *usb.Descriptor) usbip.ExportedDevice {
	exp := usbip.ExportedDevice{
		ExportMeta:          meta,
		Speed:               desc.Device.Speed,
		IDVendor:            desc.Device.IDVendor,
		IDProduct:           desc.Device.IDProduct,
		BcdDevice:           desc.Device.BcdDevice,
		BDeviceClass:        desc.Device.BDeviceClass,
		BDeviceSubClass:     desc.Device.BDeviceSubClass,
		BDeviceProtocol:     desc.Device.BDeviceProtocol,
		BConfigurationValue: usbConfigValueDefault,
		BNumConfigurations:  desc.Device.BNumConfigurations,
		BNumInterfaces:      uint8(len(desc.Interfaces)),
	}
	for _, iface := range desc.Interfaces {
		exp.Interfaces = append(exp.Interfaces, usbip.InterfaceDesc{
			Class:    iface.Descriptor.BInterfaceClass,
			SubClass: iface.Descriptor.BInterfaceSubClass,
			Protocol: iface.Descriptor.BInterfaceProtocol,
		})
	}
	return exp
}

func (s *Server) handleDevList(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepDevlist, Status: 0}
	_ = rep.Write(&buf)
	metas := s.getAllDeviceMetas()
	dlh := usbip.DevListReplyHeader{NDevices: uint32(len(metas))}
	_ = dlh.Write(&buf)
	for _, m := range metas {
		exp := exportedDevice(m.Meta, m.Dev.GetDescriptor())
		_ = exp.WriteDevlist(&buf)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write devlist: %w", err)
	}
	return nil
}

func (s *Server) handleImport(conn net.Conn) (usb.Device, error) {
	var rest [busIDSize]byte
	if err := usbip.ReadExactly(conn, rest[:]); err != nil {
		return nil, fmt.Errorf("read import busid: %w", err)
	}
	reqBus := string(rest[:bytes.IndexByte(rest[:], 0)])
	s.logger.Info("Import request", "busid", reqBus)

	var chosen usb.Device
	var chosenMeta *usbip.ExportMeta
	for _, m := range s.getAllDeviceMetas() {
		meta := m.Meta
		end := bytes.IndexByte(meta.USBBusId[:], 0)
		if string(meta.USBBusId[:end]) == reqBus {
			chosen = m.Dev
			chosenMeta = &meta
			break
		}
	}
	if chosen == nil || chosenMeta == nil {
		return nil, fmt.Errorf("no device matches busid %s", reqBus)
	}

	var buf bytes.Buffer
	rep := usbip.MgmtHeader{Version: usbip.Version, Command: usbip.OpRepImport, Status: 0}
	_ = rep.Write(&buf)
	exp := exportedDevice(*chosenMeta, chosen.GetDescriptor())
	_ = exp.WriteImport(&buf)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write import reply failed: %w", err)
	}
	return chosen, nil
}

// getAllDeviceMetas aggregates device metas from all registered busses.
func (s *Server) getAllDeviceMetas() []virtualbus.DeviceMeta {
	s.busesMu.Lock()
	defer s.busesMu.Unlock()
	out := []virtualbus.DeviceMeta{}
	for _, b := range s.busses {
		out = append(out, b.GetAllDeviceMetas()...)
	}
	return out
}

type logConn struct {
	net.Conn
	s *Server
}

func (lc *logConn) Read(p []byte) (int, error) {
	n, err := lc.Conn.Read(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(true, p[:n])
	}
	return n, err
}

func (lc *logConn) Write(p []byte) (int, error) {
	n, err := lc.Conn.Write(p)
	if n > 0 && lc.s.rawLogger != nil {
		lc.s.rawLogger.Log(false, p[:n])
	}
	return n, err
}

func (s *Server) handleUrbStream(conn net.Conn, dev usb.Device) error {
	_ = conn.SetDeadline(time.Time{})

	var owningBus *virtualbus.VirtualBus
	s.busesMu.Lock()
	for _, b := range s.busses {
		for _, d := range b.Devices() {
			if d == dev {
				owningBus = b
				break
			}
		}
		if owningBus != nil {
			break
		}
	}
	s.busesMu.Unlock()
	if owningBus == nil {
		return fmt.Errorf("device does not belong to any bus")
	}

	ctx := owningBus.GetDeviceContext(dev)
	if ctx == nil {
		return fmt.Errorf("no device context available from bus")
	}

	// The URB stream is the host actually driving the device's endpoints:
	// tell the device so pending IN writes can complete, and tell it again
	// when the stream ends (cable pull from the device's point of view).
	if sink, ok := dev.(usb.AttachSink); ok {
		sink.Attached()
		defer sink.Detached()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("device removed, closing URB stream")
			return nil
		default:
		}

		var hdr [urbHdrSize]byte
		if err := usbip.ReadExactly(conn, hdr[:]); err != nil {
			return fmt.Errorf("read URB header: %w", err)
		}
		cmd := binary.BigEndian.Uint32(hdr[urbHdrOffsetCommand : urbHdrOffsetCommand+4])
		seq := binary.BigEndian.Uint32(hdr[urbHdrOffsetSeqnum : urbHdrOffsetSeqnum+4])
		devid := binary.BigEndian.Uint32(hdr[urbHdrOffsetDevid : urbHdrOffsetDevid+4])
		dir := binary.BigEndian.Uint32(hdr[urbHdrOffsetDir : urbHdrOffsetDir+4])
		ep := binary.BigEndian.Uint32(hdr[urbHdrOffsetEp : urbHdrOffsetEp+4])
		if cmd == usbip.CmdUnlinkCode {
			unlinkSeq := binary.BigEndian.Uint32(hdr[urbHdrOffsetUnlink : urbHdrOffsetUnlink+4])
			s.logger.Debug("USBIP_CMD_UNLINK", "seq", seq, "unlink", unlinkSeq)
			ret := usbip.RetUnlink{Basic: usbip.HeaderBasic{Command: usbip.RetUnlinkCode, Seqnum: seq}, Status: errConnReset}
			_ = ret.Write(conn)
			continue
		}
		if cmd != usbip.CmdSubmitCode {
			return fmt.Errorf("unsupported cmd %d (seq=%d, devid=%d)", cmd, seq, devid)
		}
		xferLen := binary.BigEndian.Uint32(hdr[urbHdrOffsetLength : urbHdrOffsetLength+4])
		setup := hdr[urbHdrOffsetSetup:urbHdrSize]

		var outPayload []byte
		if dir == usbip.DirOut && xferLen > 0 {
			outPayload = make([]byte, xferLen)
			if err := usbip.ReadExactly(conn, outPayload); err != nil {
				return fmt.Errorf("read OUT payload: %w", err)
			}
		}

		respData := s.processSubmit(dev, ep, dir, setup, outPayload)

		ret := usbip.RetSubmit{
			Basic:        usbip.HeaderBasic{Command: usbip.RetSubmitCode, Seqnum: seq},
			Status:       0,
			ActualLength: uint32(len(respData)),
		}
		var out bytes.Buffer
		if err := ret.Write(&out); err != nil {
			return fmt.Errorf("build RET_SUBMIT header: %w", err)
		}
		if len(respData) > 0 {
			out.Write(respData)
		}
		if _, err := conn.Write(out.Bytes()); err != nil {
			return fmt.Errorf("write RET_SUBMIT: %w", err)
		}
	}
}

// isClientDisconnect tests whether an error represents a normal client
// disconnect (EOF, ECONNRESET, broken pipe, or the Windows WSAECONNRESET
// translated error), which is logged at Info instead of Error.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch t := opErr.Err.(type) {
		case syscall.Errno:
			if t == syscall.ECONNRESET || t == syscall.EPIPE {
				return true
			}
		}
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") ||
		strings.Contains(e, "forcibly closed") ||
		strings.Contains(e, "aborted")
}

// processSubmit handles control transfers for enumeration on EP0 and
// forwards everything else to the device.
func (s *Server) processSubmit(dev usb.Device, ep uint32, dir uint32, setup []byte, out []byte) []byte {
	if ep != 0 {
		return dev.HandleTransfer(ep, dir, out)
	}
	if len(setup) != 8 {
		return nil
	}
	bm := setup[0]
	breq := setup[1]
	wValue := binary.LittleEndian.Uint16(setup[2:4])
	wIndex := binary.LittleEndian.Uint16(setup[4:6])
	wLength := binary.LittleEndian.Uint16(setup[6:8])

	// Vendor and class requests belong to the device.
	if bm&usbReqTypeMask != usbReqTypeStandard {
		if ch, ok := dev.(usb.ControlHandler); ok {
			if data, handled := ch.HandleControl(bm, breq, wValue, wIndex, wLength, out); handled {
				if int(wLength) < len(data) {
					return data[:wLength]
				}
				return data
			}
		}
		s.logger.Debug("unhandled non-standard control request", "bmRequestType", bm, "bRequest", breq)
		return nil
	}

	if breq == usbReqSetAddress && bm == usbReqTypeStandardToDevice {
		return nil
	}
	if breq == usbReqSetConfiguration && bm == usbReqTypeStandardToDevice {
		return nil
	}
	if breq == usbReqGetConfiguration && bm == usbReqTypeStandardFromDevice {
		return []byte{usbConfigValueDefault}
	}
	if breq == usbReqGetStatus && bm == usbReqTypeStandardFromDevice {
		return []byte{0x00, 0x00}
	}

	if breq == usbReqGetDescriptor && bm == usbReqTypeStandardFromDevice {
		desc := dev.GetDescriptor()
		dtype := uint8(wValue >> 8)
		dindex := uint8(wValue & 0xff)
		var data []byte
		switch dtype {
		case usb.DeviceDescType:
			data = desc.Bytes()
		case usb.ConfigDescType:
			data = BuildConfigDescriptor(desc)
		case usb.StringDescType:
			if str, ok := desc.Strings[dindex]; ok {
				data = usb.EncodeStringDescriptor(str)
			}
		}
		if len(data) == 0 {
			return nil
		}
		if int(wLength) < len(data) {
			return data[:wLength]
		}
		return data
	}
	return nil
}

// BuildConfigDescriptor builds the full configuration descriptor for the
// device: config header, then per interface the interface descriptor, its
// endpoints, and any class-specific blocks.
func BuildConfigDescriptor(desc *usb.Descriptor) []byte {
	var b bytes.Buffer
	h := usb.ConfigHeader{
		WTotalLength:        0, // patched below
		BNumInterfaces:      uint8(len(desc.Interfaces)),
		BConfigurationValue: usbConfigValueDefault,
		BMAttributes:        usbConfigAttrBusPowered,
		BMaxPower:           usbConfigMaxPower250mA,
	}
	h.Write(&b)
	for _, iface := range desc.Interfaces {
		iface.Descriptor.Write(&b)
		for _, ep := range iface.Endpoints {
			ep.Write(&b)
		}
		for _, cd := range iface.ClassDescriptors {
			cd.Write(&b)
		}
	}

	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)))
	return data
}
