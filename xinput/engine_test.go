package xinput_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/9names/xrecv/xinput"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFakeDetached = errors.New("no interface attached")

type fakeIn struct {
	msgs     chan []byte
	detached atomic.Bool
}

func (f *fakeIn) Write(ctx context.Context, data []byte) error {
	if f.detached.Load() {
		return errFakeDetached
	}
	select {
	case f.msgs <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeOut struct {
	xfers chan []byte
}

func (f *fakeOut) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.xfers:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type engineHarness struct {
	ch     *xinput.Channel
	engine *xinput.Engine
	in     *fakeIn
	out    *fakeOut
	cancel context.CancelFunc
}

func startEngine(t *testing.T, tick time.Duration) *engineHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &engineHarness{
		ch:  xinput.NewChannel(),
		in:  &fakeIn{msgs: make(chan []byte, 16)},
		out: &fakeOut{xfers: make(chan []byte)},
	}
	h.engine = xinput.NewEngine(0, h.ch, h.in, h.out, tick, logger)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.engine.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func (h *engineHarness) recv(t *testing.T) []byte {
	t.Helper()
	select {
	case msg := <-h.in.msgs:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for IN message")
		return nil
	}
}

func (h *engineHarness) hostSends(t *testing.T, data []byte) {
	t.Helper()
	select {
	case h.out.xfers <- data:
	case <-time.After(time.Second):
		t.Fatal("timed out sending OUT transfer")
	}
}

func expectedDataMessage(f xinput.Frame) []byte {
	b := make([]byte, 29)
	b[1] = 0x01
	b[3] = 0xF0
	b[5] = 0x13
	copy(b[6:18], f[:])
	return b
}

func TestEnginePairingHandshake(t *testing.T) {
	h := startEngine(t, time.Hour) // idle deadline out of the way

	assert.Equal(t, xinput.Disconnected, h.engine.State())

	// First published frame announces the controller before its data.
	frame := xinput.Gamepad{A: true}.Frame()
	h.ch.Publish(frame)
	assert.Equal(t, []byte{0x08, 0x80}, h.recv(t))
	assert.Equal(t, expectedDataMessage(frame), h.recv(t))
	assert.Equal(t, xinput.AwaitingAck1, h.engine.State())

	// First ack yields the controller-info packet.
	h.hostSends(t, pad12([]byte{0x00, 0x00, 0x00, 0x40}))
	info := h.recv(t)
	require.Len(t, info, 29)
	assert.Equal(t, []byte{0x00, 0x0F, 0x00, 0xF0, 0xF0, 0xCC}, info[:6])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, info[6:13])
	assert.Equal(t, xinput.AwaitingAck2, h.engine.State())

	// Second ack completes the handshake silently.
	h.hostSends(t, pad12([]byte{0x00, 0x00, 0x00, 0x40}))
	require.Eventually(t, func() bool {
		return h.engine.State() == xinput.Paired
	}, time.Second, time.Millisecond)
	assert.Empty(t, h.in.msgs)
}

func TestEngineStatusQuery(t *testing.T) {
	h := startEngine(t, time.Hour)

	// No controller announced yet.
	h.hostSends(t, pad12([]byte{0x08, 0x00, 0x0F, 0xC0}))
	assert.Equal(t, []byte{0x08, 0x08}, h.recv(t))
	assert.Equal(t, xinput.Disconnected, h.engine.State())

	// Once a producer is active, a query restarts the announcement.
	h.ch.Publish(xinput.Frame{})
	h.recv(t) // status
	h.recv(t) // data
	h.hostSends(t, pad12([]byte{0x00, 0x00, 0x00, 0x40}))
	h.recv(t) // controller info
	h.hostSends(t, pad12([]byte{0x00, 0x00, 0x00, 0x40}))
	require.Eventually(t, func() bool {
		return h.engine.State() == xinput.Paired
	}, time.Second, time.Millisecond)

	h.hostSends(t, pad12([]byte{0x08, 0x00, 0x0F, 0xC0}))
	assert.Equal(t, []byte{0x08, 0x80}, h.recv(t))
	assert.Equal(t, xinput.AwaitingAck1, h.engine.State())
}

func TestEngineRumble(t *testing.T) {
	h := startEngine(t, time.Hour)

	got := make(chan [2]uint8, 1)
	h.engine.SetRumbleFunc(func(strong, weak uint8) {
		got <- [2]uint8{strong, weak}
	})

	h.hostSends(t, pad12([]byte{0x00, 0x01, 0x0F, 0xC0, 0x00, 0x7F, 0x10}))

	select {
	case v := <-got:
		assert.Equal(t, [2]uint8{0x7F, 0x10}, v)
	case <-time.After(time.Second):
		t.Fatal("rumble callback not invoked")
	}

	strong, weak := h.ch.Rumble()
	assert.Equal(t, uint8(0x7F), strong)
	assert.Equal(t, uint8(0x10), weak)
}

func TestEngineIdleKeepAlive(t *testing.T) {
	h := startEngine(t, time.Millisecond)

	h.ch.Publish(xinput.Frame{})
	h.recv(t) // status
	h.recv(t) // data

	// With nothing published, the idle deadline fires exactly once.
	keepAlive := h.recv(t)
	expected := make([]byte, 29)
	expected[3] = 0xF0
	assert.Equal(t, expected, keepAlive)

	select {
	case msg := <-h.in.msgs:
		t.Fatalf("unexpected second idle message: % x", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// A new frame re-arms the deadline.
	h.ch.Publish(xinput.Frame{0x01})
	h.recv(t) // data
	assert.Equal(t, expected, h.recv(t))
}

func TestEngineNoKeepAliveAfterFailedSend(t *testing.T) {
	h := startEngine(t, time.Millisecond)

	// With the host gone, a published frame is dropped and must not start
	// the idle countdown.
	h.in.detached.Store(true)
	h.ch.Publish(xinput.Frame{})
	select {
	case msg := <-h.in.msgs:
		t.Fatalf("unexpected message while detached: % x", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// A delivered frame arms it as usual.
	h.in.detached.Store(false)
	h.ch.Publish(xinput.Frame{0x01})
	h.recv(t) // data
	keepAlive := h.recv(t)
	expected := make([]byte, 29)
	expected[3] = 0xF0
	assert.Equal(t, expected, keepAlive)
}
