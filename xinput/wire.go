package xinput

// The host driver matches these messages byte for byte. Keep them as literal
// tables so changes stand out in review.

// InMessageSize is the length of every IN message except the 2-byte status
// frames.
const InMessageSize = 29

var (
	// Connection status frames (2 bytes).
	statusConnected    = []byte{0x08, 0x80}
	statusDisconnected = []byte{0x08, 0x08}

	// serialNumber is the link-level serial reported both inside the
	// controller-info packet and through the vendor control request. The
	// first four bytes must equal the trailing four bytes of the serial
	// field in controllerInfo below.
	serialNumber = [7]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	// controllerInfo is the fixed packet sent as the second handshake step:
	// a 6-byte header, the 7-byte serial, zero padding.
	controllerInfo = [InMessageSize]byte{
		0x00, 0x0F, 0x00, 0xF0, 0xF0, 0xCC,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}
)

// Offsets and header bytes of the gamepad data message.
const (
	dataFrameOffset = 6

	dataHeader1 = 0x01 // message carries controller data
	dataHeader3 = 0xF0
	dataHeader5 = 0x13 // inner message length
)

// dataMessage builds the 29-byte gamepad data message around f.
func dataMessage(f Frame) []byte {
	b := make([]byte, InMessageSize)
	b[1] = dataHeader1
	b[3] = dataHeader3
	b[5] = dataHeader5
	copy(b[dataFrameOffset:dataFrameOffset+FrameSize], f[:])
	return b
}

// keepAliveMessage builds the idle placeholder message: all zero except the
// fixed marker byte.
func keepAliveMessage() []byte {
	b := make([]byte, InMessageSize)
	b[3] = dataHeader3
	return b
}
