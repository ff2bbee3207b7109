package input_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/9names/xrecv/inputclient"
	"github.com/9names/xrecv/internal/auth"
	"github.com/9names/xrecv/internal/server/input"
	"github.com/9names/xrecv/xinput"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "test-password"

func startServer(t *testing.T) (*input.Server, *xinput.Receiver) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	recv, err := xinput.New(xinput.Config{Controllers: 2, Tick: time.Hour}, logger)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go recv.Run(ctx)
	t.Cleanup(cancel)

	key, err := auth.DeriveKey(testPassword)
	require.NoError(t, err)

	srv := input.New(input.ServerConfig{
		Addr:              "127.0.0.1:0",
		ConnectionTimeout: 5 * time.Second,
	}, recv, key, logger)
	go func() {
		_ = srv.ListenAndServe()
	}()
	t.Cleanup(func() { _ = srv.Close() })

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}
	return srv, recv
}

func TestInputServerDeliversFrames(t *testing.T) {
	srv, recv := startServer(t)

	client, err := inputclient.Dial(srv.Addr().String(), testPassword)
	require.NoError(t, err)
	defer client.Close()

	g := xinput.Gamepad{A: true, ThumbLeftX: 1000}
	require.NoError(t, client.SendGamepad(0, g))

	// The slot's engine picks the frame up and starts announcing.
	require.Eventually(t, func() bool {
		return recv.Controller(0).State() == xinput.AwaitingAck1
	}, time.Second, time.Millisecond)
	assert.Equal(t, xinput.Disconnected, recv.Controller(1).State())

	// Frames for the second pad land on the second slot.
	require.NoError(t, client.SendFrame(1, xinput.Frame{0xAB}))
	require.Eventually(t, func() bool {
		return recv.Controller(1).State() == xinput.AwaitingAck1
	}, time.Second, time.Millisecond)
}

func TestInputServerRejectsWrongPassword(t *testing.T) {
	srv, _ := startServer(t)

	_, err := inputclient.Dial(srv.Addr().String(), "not-the-password")
	assert.Error(t, err)
}

func TestInputServerPushesRumble(t *testing.T) {
	srv, recv := startServer(t)

	client, err := inputclient.Dial(srv.Addr().String(), testPassword)
	require.NoError(t, err)
	defer client.Close()

	// Simulate a host rumble command arriving for slot 1.
	recv.Attached()
	defer recv.Detached()
	out := make([]byte, 12)
	copy(out, []byte{0x00, 0x01, 0x0F, 0xC0, 0x00, 0x55, 0x66})
	// Endpoint 2 is slot 1's primary OUT endpoint when aux is disabled.
	recv.HandleTransfer(2, 0, out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pad, strong, weak, err := client.ReadRumble()
		assert.NoError(t, err)
		assert.Equal(t, uint8(1), pad)
		assert.Equal(t, uint8(0x55), strong)
		assert.Equal(t, uint8(0x66), weak)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rumble push")
	}
}
