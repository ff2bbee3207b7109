// Package xinput emulates the USB personality of an Xbox 360 wireless
// receiver: the descriptor topology, the pairing handshake and the binary
// framing of controller state that the stock host driver expects.
package xinput

import "encoding/binary"

// FrameSize is the size of a packed controller state on the wire.
const FrameSize = 12

// Frame is the 12-byte packed controller state embedded in gamepad data
// messages. Field layout is fixed by the host driver; see Gamepad.Frame.
type Frame [FrameSize]byte

// Gamepad is a semantic controller snapshot as sampled by an input producer.
type Gamepad struct {
	DPadUp    bool
	DPadDown  bool
	DPadLeft  bool
	DPadRight bool
	Start     bool
	Back      bool
	// Stick click buttons
	LeftThumb  bool
	RightThumb bool
	// Shoulder buttons (bumpers)
	LeftShoulder  bool
	RightShoulder bool
	// Center logo button
	Guide bool
	A     bool
	B     bool
	X     bool
	Y     bool

	TriggerLeft  int8
	TriggerRight int8

	ThumbLeftX  int16
	ThumbLeftY  int16
	ThumbRightX int16
	ThumbRightY int16
}

func btn(bit uint, pressed bool) byte {
	if pressed {
		return 1 << bit
	}
	return 0
}

// Frame packs the snapshot into the wire format.
// Layout (all multi-byte fields little-endian):
//
//	 0: dpad up/down/left/right, start, back, left thumb, right thumb (bits 0-7)
//	 1: left shoulder, right shoulder, guide, [unused], A, B, X, Y (bits 0-7)
//	 2: left trigger (signed)
//	 3: right trigger (signed)
//	 4-5: left stick X
//	 6-7: left stick Y
//	 8-9: right stick X
//	10-11: right stick Y
func (g Gamepad) Frame() Frame {
	var f Frame

	f[0] = btn(0, g.DPadUp) |
		btn(1, g.DPadDown) |
		btn(2, g.DPadLeft) |
		btn(3, g.DPadRight) |
		btn(4, g.Start) |
		btn(5, g.Back) |
		btn(6, g.LeftThumb) |
		btn(7, g.RightThumb)

	f[1] = btn(0, g.LeftShoulder) |
		btn(1, g.RightShoulder) |
		btn(2, g.Guide) |
		// bit 3 is unused
		btn(4, g.A) |
		btn(5, g.B) |
		btn(6, g.X) |
		btn(7, g.Y)

	f[2] = byte(g.TriggerLeft)
	f[3] = byte(g.TriggerRight)

	binary.LittleEndian.PutUint16(f[4:6], uint16(g.ThumbLeftX))
	binary.LittleEndian.PutUint16(f[6:8], uint16(g.ThumbLeftY))
	binary.LittleEndian.PutUint16(f[8:10], uint16(g.ThumbRightX))
	binary.LittleEndian.PutUint16(f[10:12], uint16(g.ThumbRightY))

	return f
}
