package usb

// Device is the minimal interface a device must implement.
// It only handles non-EP0 (interrupt/bulk) transfers.
type Device interface {
	// HandleTransfer processes a non-EP0 transfer (interrupt/bulk).
	// ep is the endpoint number (without direction). dir is usbip.DirIn or
	// usbip.DirOut. For IN transfers, return the payload to send (nil means
	// no data is pending); for OUT, consume 'out' and return nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	GetDescriptor() *Descriptor
}

// ControlHandler is implemented by devices that answer vendor or class
// control requests on EP0. Standard enumeration requests never reach it.
// ok reports whether the request was recognized; data is the IN payload
// (may be nil for OUT/no-data requests).
type ControlHandler interface {
	HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, out []byte) (data []byte, ok bool)
}

// AttachSink is implemented by devices that need to know when a host is
// actually driving their endpoints. Attached is called once a URB stream for
// the device starts; Detached when it ends. Devices must tolerate repeated
// attach/detach cycles (cable replug).
type AttachSink interface {
	Attached()
	Detached()
}
