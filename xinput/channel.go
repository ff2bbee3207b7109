package xinput

import (
	"context"
	"sync/atomic"
)

// Channel is the lossy single-slot state exchange between an input producer
// and a controller's protocol engine. Publishing never blocks and always
// replaces an unread frame; only the freshest state matters. It also carries
// the rumble register written by the engine and read by the producer.
type Channel struct {
	frames chan Frame
	// rumble holds strong in the low byte and weak in the high byte.
	rumble atomic.Uint32
}

// NewChannel returns an empty channel with rumble off.
func NewChannel() *Channel {
	return &Channel{frames: make(chan Frame, 1)}
}

// Publish stores f as the pending frame, replacing any frame that has not
// been consumed yet. Safe to call from any goroutine at any rate.
func (c *Channel) Publish(f Frame) {
	for {
		select {
		case c.frames <- f:
			return
		default:
			// Slot occupied: drop the stale frame and retry.
			select {
			case <-c.frames:
			default:
			}
		}
	}
}

// Next blocks until a frame has been published since the last delivery.
// Bursts published while nobody was waiting coalesce into the latest frame.
func (c *Channel) Next(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *Channel) setRumble(strong, weak uint8) {
	c.rumble.Store(uint32(strong) | uint32(weak)<<8)
}

// Rumble returns the last rumble intensities written by the host,
// (strong/left motor, weak/right motor).
func (c *Channel) Rumble() (strong, weak uint8) {
	v := c.rumble.Load()
	return uint8(v), uint8(v >> 8)
}
