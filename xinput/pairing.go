package xinput

// PairingState tracks how far the host driver's pairing handshake for one
// controller slot has progressed. It is only mutated by the slot's engine
// loop.
type PairingState uint32

const (
	// Disconnected: no controller announced on this slot.
	Disconnected PairingState = iota
	// AwaitingAck1: "connected" status sent, waiting for the first ack.
	AwaitingAck1
	// AwaitingAck2: controller-info packet sent, waiting for the second ack.
	AwaitingAck2
	// Paired: handshake complete, steady state.
	Paired
)

func (s PairingState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingAck1:
		return "awaiting-ack1"
	case AwaitingAck2:
		return "awaiting-ack2"
	case Paired:
		return "paired"
	}
	return "unknown"
}
