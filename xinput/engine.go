package xinput

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// InEndpoint is the engine's view of a function's interrupt-IN endpoint.
// Write blocks until the host consumes the message or the transfer fails.
type InEndpoint interface {
	Write(ctx context.Context, data []byte) error
}

// OutEndpoint is the engine's view of a function's interrupt-OUT endpoint.
// Read blocks until the host delivers a transfer.
type OutEndpoint interface {
	Read(ctx context.Context) ([]byte, error)
}

// Protocol timing, in ticks.
const (
	idleTicks       = 11
	errorPauseTicks = 1
)

// DefaultTick is the protocol time unit; the firmware this reimplements ran
// its deadlines on a millisecond tick.
const DefaultTick = time.Millisecond

// Engine drives the wireless-receiver protocol for one controller slot. It
// races three event sources per iteration: a freshly published frame, the
// idle keep-alive deadline and the next inbound OUT transfer. All state is
// confined to the Run goroutine; the loop never terminates on its own.
type Engine struct {
	slot   int
	ch     *Channel
	in     InEndpoint
	out    OutEndpoint
	logger *slog.Logger
	tick   time.Duration

	state    atomic.Uint32
	onRumble atomic.Value // func(strong, weak uint8)
}

// NewEngine wires an engine to its channel and endpoints. tick <= 0 selects
// DefaultTick.
func NewEngine(slot int, ch *Channel, in InEndpoint, out OutEndpoint, tick time.Duration, logger *slog.Logger) *Engine {
	if tick <= 0 {
		tick = DefaultTick
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		slot:   slot,
		ch:     ch,
		in:     in,
		out:    out,
		logger: logger.With("slot", slot),
		tick:   tick,
	}
}

// State reports the current pairing state. Safe from any goroutine.
func (e *Engine) State() PairingState {
	return PairingState(e.state.Load())
}

func (e *Engine) setState(s PairingState) {
	old := e.State()
	if old != s {
		e.logger.Debug("pairing state change", "from", old, "to", s)
	}
	e.state.Store(uint32(s))
}

// SetRumbleFunc registers f to be called whenever the host sends a rumble
// command. The channel's rumble register is updated regardless.
func (e *Engine) SetRumbleFunc(f func(strong, weak uint8)) {
	e.onRumble.Store(f)
}

type outResult struct {
	data []byte
	err  error
}

// Run executes the event loop until ctx is cancelled. Outbound writes are
// best effort: a host mid-enumeration or a replugged cable makes them fail
// transiently, and the condition self-resolves on the next enumeration, so
// failures are logged and swallowed.
func (e *Engine) Run(ctx context.Context) {
	// OUT transfers are pumped through an unbuffered channel so the select
	// below services exactly one event source per iteration while the reads
	// stay first-come first-served.
	outCh := make(chan outResult)
	go func() {
		for {
			data, err := e.out.Read(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case outCh <- outResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	idle := time.NewTimer(e.tick)
	if !idle.Stop() {
		<-idle.C
	}
	defer idle.Stop()
	idleArmed := false

	disarmIdle := func() {
		if idleArmed && !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idleArmed = false
	}

	for {
		var idleC <-chan time.Time
		if idleArmed {
			idleC = idle.C
		}

		select {
		case <-ctx.Done():
			return

		case f := <-e.ch.frames:
			// A producer is publishing: if this slot looked disconnected,
			// announce the controller before the first data frame.
			if e.State() == Disconnected {
				e.send(ctx, statusConnected)
				e.setState(AwaitingAck1)
			}
			// Only a delivered frame starts the idle countdown; a dropped
			// write means no host is listening for keep-alives either.
			if e.send(ctx, dataMessage(f)) == nil {
				disarmIdle()
				idle.Reset(idleTicks * e.tick)
				idleArmed = true
			}

		case <-idleC:
			idleArmed = false
			e.send(ctx, keepAliveMessage())

		case res := <-outCh:
			if res.err != nil {
				e.logger.Debug("OUT transfer failed", "error", res.err)
				e.pause(ctx, errorPauseTicks*e.tick)
				continue
			}
			e.handleCommand(ctx, Classify(res.data))
		}
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case StatusQuery:
		if e.State() == Disconnected {
			e.send(ctx, statusDisconnected)
			return
		}
		// Re-announce presence to a host that re-polls mid-handshake.
		e.send(ctx, statusConnected)
		e.setState(AwaitingAck1)

	case Ack:
		switch e.State() {
		case AwaitingAck1:
			e.send(ctx, controllerInfo[:])
			e.setState(AwaitingAck2)
		case AwaitingAck2:
			e.setState(Paired)
		default:
			e.logger.Warn("unexpected ack", "state", e.State())
		}

	case LED:
		e.logger.Debug("led command", "index", c.Index)

	case Rumble:
		e.ch.setRumble(c.Strong, c.Weak)
		if f, ok := e.onRumble.Load().(func(strong, weak uint8)); ok && f != nil {
			f(c.Strong, c.Weak)
		}

	case Unrecognized:
		e.logger.Debug("unrecognized OUT transfer", "data", fmt.Sprintf("% x", c.Raw))
	}
}

func (e *Engine) send(ctx context.Context, data []byte) error {
	err := e.in.Write(ctx, data)
	if err != nil {
		e.logger.Debug("IN write dropped", "error", err)
	}
	return err
}

func (e *Engine) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
