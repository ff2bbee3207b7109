package xinput

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/9names/xrecv/usb"
	"github.com/9names/xrecv/usbip"
)

// MaxControllers is the number of controller slots a receiver offers.
const MaxControllers = 4

// ErrNotAttached is returned by IN endpoint writes while no host is driving
// the device (mid-enumeration, or just after a replug). The engine treats it
// as transient.
var ErrNotAttached = errors.New("xinput: no host attached")

// Vendor control request answered with the wire serial number.
const (
	serialRequest      = 1
	serialRequestValue = 1
)

// Config selects the receiver topology.
type Config struct {
	// Controllers is the number of controller slots, 1 to 4.
	Controllers int
	// Aux adds the auxiliary (headset) function per slot. The host then
	// polls the extra endpoints; leaving it off avoids that traffic at the
	// cost of the host never offering headset support.
	Aux bool
	// Tick is the protocol time unit; zero selects DefaultTick.
	Tick time.Duration
}

// Controller is the producer-facing handle for one slot.
type Controller struct {
	slot   int
	ch     *Channel
	engine *Engine

	// inbox hands IN messages from the engine to host polls; unbuffered so
	// engine writes suspend until the host actually consumes them.
	inbox chan []byte
	// outbox queues host OUT transfers for the engine.
	outbox chan []byte
}

// Publish packs and publishes a snapshot. Never blocks; an unread previous
// state is replaced.
func (c *Controller) Publish(g Gamepad) {
	c.ch.Publish(g.Frame())
}

// PublishFrame publishes an already packed frame.
func (c *Controller) PublishFrame(f Frame) {
	c.ch.Publish(f)
}

// Rumble returns the last (strong, weak) motor intensities the host sent.
func (c *Controller) Rumble() (strong, weak uint8) {
	return c.ch.Rumble()
}

// SetRumbleFunc registers a callback invoked on every rumble command.
func (c *Controller) SetRumbleFunc(f func(strong, weak uint8)) {
	c.engine.SetRumbleFunc(f)
}

// State reports the slot's pairing state.
func (c *Controller) State() PairingState {
	return c.engine.State()
}

type epRole struct {
	ctrl *Controller
	aux  bool
}

type epKey struct {
	num uint32
	dir uint32
}

// Receiver presents the Xbox 360 wireless receiver USB personality. It
// implements usb.Device, usb.ControlHandler and usb.AttachSink for the
// USB/IP server and exposes Controller handles to input producers.
type Receiver struct {
	descriptor  usb.Descriptor
	controllers []*Controller
	endpoints   map[epKey]epRole
	logger      *slog.Logger

	attachMu sync.Mutex
	attached bool
	detachCh chan struct{}
}

// New builds a receiver with cfg.Controllers slots.
func New(cfg Config, logger *slog.Logger) (*Receiver, error) {
	if cfg.Controllers < 1 || cfg.Controllers > MaxControllers {
		return nil, fmt.Errorf("controller count %d out of range 1..%d", cfg.Controllers, MaxControllers)
	}
	if logger == nil {
		logger = slog.Default()
	}

	desc, primary, aux := buildDescriptor(cfg.Controllers, cfg.Aux)
	r := &Receiver{
		descriptor: desc,
		endpoints:  make(map[epKey]epRole),
		logger:     logger,
		detachCh:   make(chan struct{}),
	}

	for i := 0; i < cfg.Controllers; i++ {
		c := &Controller{
			slot:   i,
			ch:     NewChannel(),
			inbox:  make(chan []byte),
			outbox: make(chan []byte, 8),
		}
		c.engine = NewEngine(i, c.ch, &inEndpoint{r: r, ctrl: c}, &outEndpoint{ctrl: c}, cfg.Tick, logger)
		r.controllers = append(r.controllers, c)

		pep := primary[i]
		r.endpoints[epKey{num: uint32(pep.in), dir: usbip.DirIn}] = epRole{ctrl: c}
		r.endpoints[epKey{num: uint32(pep.out), dir: usbip.DirOut}] = epRole{ctrl: c}
		if cfg.Aux {
			aep := aux[i]
			r.endpoints[epKey{num: uint32(aep.in), dir: usbip.DirIn}] = epRole{ctrl: c, aux: true}
			r.endpoints[epKey{num: uint32(aep.out), dir: usbip.DirOut}] = epRole{ctrl: c, aux: true}
		}
	}
	return r, nil
}

// Controller returns the handle for slot i (0-based).
func (r *Receiver) Controller(i int) *Controller {
	return r.controllers[i]
}

// Controllers returns the number of slots.
func (r *Receiver) Controllers() int {
	return len(r.controllers)
}

// Run starts the protocol engines and blocks until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range r.controllers {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.Run(ctx)
		}(c.engine)
	}
	wg.Wait()
}

// GetDescriptor implements usb.Device.
func (r *Receiver) GetDescriptor() *usb.Descriptor {
	return &r.descriptor
}

// HandleTransfer implements usb.Device. IN polls are answered with a pending
// engine message or nothing; OUT transfers are queued for the owning
// engine. The aux function carries no data in this emulation.
func (r *Receiver) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	role, ok := r.endpoints[epKey{num: ep, dir: dir}]
	if !ok {
		r.logger.Debug("transfer on unknown endpoint", "ep", ep, "dir", dir)
		return nil
	}
	if role.aux {
		return nil
	}

	if dir == usbip.DirIn {
		select {
		case msg := <-role.ctrl.inbox:
			return msg
		default:
			return nil
		}
	}

	if len(out) == 0 {
		return nil
	}
	buf := make([]byte, len(out))
	copy(buf, out)
	select {
	case role.ctrl.outbox <- buf:
	default:
		r.logger.Warn("OUT transfer queue full, dropping", "slot", role.ctrl.slot)
	}
	return nil
}

// HandleControl implements usb.ControlHandler: a vendor control-IN request
// (request=1, value=1, index=0) returns the fixed 7-byte serial the host
// driver matches against the controller-info packet.
func (r *Receiver) HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, out []byte) ([]byte, bool) {
	const dirInVendor = 0xC0 // direction IN, type vendor, recipient device
	if bmRequestType&0xE0 == dirInVendor &&
		bRequest == serialRequest &&
		wValue == serialRequestValue &&
		wIndex == 0 &&
		int(wLength) >= len(serialNumber) {
		s := serialNumber
		return s[:], true
	}
	return nil, false
}

// Attached implements usb.AttachSink.
func (r *Receiver) Attached() {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	if !r.attached {
		r.attached = true
		r.detachCh = make(chan struct{})
		r.logger.Info("host attached")
	}
}

// Detached implements usb.AttachSink.
func (r *Receiver) Detached() {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	if r.attached {
		r.attached = false
		close(r.detachCh)
		r.logger.Info("host detached")
	}
}

func (r *Receiver) attachState() (bool, <-chan struct{}) {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()
	return r.attached, r.detachCh
}

// inEndpoint suspends the engine's writes until a host poll picks the
// message up, mirroring how a hardware interrupt-IN endpoint completes only
// when the host polls it.
type inEndpoint struct {
	r    *Receiver
	ctrl *Controller
}

func (ep *inEndpoint) Write(ctx context.Context, data []byte) error {
	attached, detach := ep.r.attachState()
	if !attached {
		return ErrNotAttached
	}
	select {
	case ep.ctrl.inbox <- data:
		return nil
	case <-detach:
		return ErrNotAttached
	case <-ctx.Done():
		return ctx.Err()
	}
}

type outEndpoint struct {
	ctrl *Controller
}

func (ep *outEndpoint) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-ep.ctrl.outbox:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
