package xinput

import "bytes"

// OutTransferSize is the only OUT transfer length the receiver protocol
// uses; transfers of any other length are unrecognized.
const OutTransferSize = 12

// Command is a decoded host-to-device OUT transfer.
type Command interface {
	isCommand()
}

// StatusQuery asks for the connection status of the controller slot.
type StatusQuery struct{}

// Ack acknowledges a handshake step.
type Ack struct{}

// LED selects a LED pattern for the controller slot.
type LED struct {
	Index uint8 // low nibble of the pattern byte
}

// Rumble sets the vibration motor intensities.
type Rumble struct {
	Strong uint8 // left / low-frequency motor
	Weak   uint8 // right / high-frequency motor
}

// Unrecognized carries a transfer matching no known pattern. It is logged
// and otherwise ignored.
type Unrecognized struct {
	Raw []byte
}

func (StatusQuery) isCommand()  {}
func (Ack) isCommand()          {}
func (LED) isCommand()          {}
func (Rumble) isCommand()       {}
func (Unrecognized) isCommand() {}

var (
	statusQueryPrefix = []byte{0x08, 0x00, 0x0F, 0xC0}
	ackPrefix         = []byte{0x00, 0x00, 0x00, 0x40}
	rumblePrefix      = []byte{0x00, 0x01, 0x0F, 0xC0, 0x00}
	ledPrefix         = []byte{0x00, 0x00, 0x08}
)

// ledMarker must be set in the pattern byte for a LED command to be valid.
const ledMarker = 0x40

// Classify decodes an OUT transfer by literal prefix match, first match
// wins. Anything that is not exactly 12 bytes, or matches no pattern, is
// Unrecognized.
func Classify(raw []byte) Command {
	if len(raw) != OutTransferSize {
		return Unrecognized{Raw: raw}
	}
	switch {
	case bytes.HasPrefix(raw, statusQueryPrefix):
		return StatusQuery{}
	case bytes.HasPrefix(raw, ackPrefix):
		return Ack{}
	case bytes.HasPrefix(raw, ledPrefix) && raw[3]&ledMarker == ledMarker:
		return LED{Index: raw[3] & 0x0F}
	case bytes.HasPrefix(raw, rumblePrefix):
		return Rumble{Strong: raw[5], Weak: raw[6]}
	}
	return Unrecognized{Raw: raw}
}
