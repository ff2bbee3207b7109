package usb_test

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/9names/xrecv/internal/log"
	"github.com/9names/xrecv/internal/server/usb"
	"github.com/9names/xrecv/virtualbus"
	"github.com/9names/xrecv/xinput"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildConfigDescriptor(t *testing.T) {
	recv, err := xinput.New(xinput.Config{Controllers: 1}, discardLogger())
	require.NoError(t, err)

	data := usb.BuildConfigDescriptor(recv.GetDescriptor())

	// config header + interface + 2 endpoints + class block
	expectedLen := 9 + 9 + 2*7 + (2 + 18)
	require.Len(t, data, expectedLen)

	assert.Equal(t, uint8(9), data[0])
	assert.Equal(t, uint8(0x02), data[1])
	assert.Equal(t, uint16(expectedLen), binary.LittleEndian.Uint16(data[2:4]))
	assert.Equal(t, uint8(1), data[4]) // bNumInterfaces

	// Interface descriptor directly after the header.
	assert.Equal(t, []byte{9, 0x04}, data[9:11])
	// Endpoints follow the interface, class block comes last.
	assert.Equal(t, uint8(0x05), data[19])
	assert.Equal(t, uint8(0x05), data[26])
	assert.Equal(t, []byte{20, 0x22}, data[32:34])
}

type testServer struct {
	srv  *usb.Server
	meta [32]byte
}

func startUsbServer(t *testing.T, controllers int) *testServer {
	t.Helper()
	logger := discardLogger()

	recv, err := xinput.New(xinput.Config{Controllers: controllers, Tick: time.Hour}, logger)
	require.NoError(t, err)

	bus := virtualbus.New()
	t.Cleanup(func() { _ = bus.Close() })
	_, err = bus.Add(recv)
	require.NoError(t, err)

	srv := usb.New(usb.ServerConfig{
		Addr:              "127.0.0.1:0",
		ConnectionTimeout: 5 * time.Second,
	}, logger, log.NewRaw(nil))
	require.NoError(t, srv.AddBus(bus))

	go func() { _ = srv.ListenAndServe() }()
	t.Cleanup(func() { _ = srv.Close() })
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	metas := bus.GetAllDeviceMetas()
	require.Len(t, metas, 1)
	return &testServer{srv: srv, meta: metas[0].Meta.USBBusId}
}

func dialUsb(t *testing.T, ts *testServer) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ts.srv.ListenAddr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDevList(t *testing.T) {
	ts := startUsbServer(t, 2)
	conn := dialUsb(t, ts)

	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], 0x0111)
	binary.BigEndian.PutUint16(req[2:4], 0x8005)
	_, err := conn.Write(req)
	require.NoError(t, err)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	require.Greater(t, len(reply), 12+312)

	assert.Equal(t, uint16(0x0111), binary.BigEndian.Uint16(reply[0:2]))
	assert.Equal(t, uint16(0x0005), binary.BigEndian.Uint16(reply[2:4]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(reply[4:8]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(reply[8:12]))

	entry := reply[12:]
	assert.Equal(t, ts.meta[:], entry[256:288])
	assert.Equal(t, uint16(0x045E), binary.BigEndian.Uint16(entry[300:302]))
	assert.Equal(t, uint16(0x0719), binary.BigEndian.Uint16(entry[302:304]))
	// 2 controllers without aux yield 2 interfaces.
	assert.Equal(t, uint8(2), entry[311])
	assert.Len(t, entry, 312+2*4)
	assert.Equal(t, []byte{0xFF, 0x5D, 0x81, 0x00}, entry[312:316])
}

func submitControl(t *testing.T, conn net.Conn, seq uint32, setup [8]byte, transferLen uint32) []byte {
	t.Helper()
	hdr := make([]byte, 48)
	binary.BigEndian.PutUint32(hdr[0:4], 0x00000001) // CMD_SUBMIT
	binary.BigEndian.PutUint32(hdr[4:8], seq)
	binary.BigEndian.PutUint32(hdr[12:16], 1) // direction IN
	binary.BigEndian.PutUint32(hdr[16:20], 0) // ep0
	binary.BigEndian.PutUint32(hdr[24:28], transferLen)
	copy(hdr[40:48], setup[:])
	_, err := conn.Write(hdr)
	require.NoError(t, err)

	ret := make([]byte, 48)
	_, err = io.ReadFull(conn, ret)
	require.NoError(t, err)
	require.Equal(t, uint32(0x00000003), binary.BigEndian.Uint32(ret[0:4]))
	require.Equal(t, seq, binary.BigEndian.Uint32(ret[4:8]))
	require.Equal(t, uint32(0), binary.BigEndian.Uint32(ret[20:24]), "status")

	actual := binary.BigEndian.Uint32(ret[24:28])
	data := make([]byte, actual)
	if actual > 0 {
		_, err = io.ReadFull(conn, data)
		require.NoError(t, err)
	}
	return data
}

func TestImportAndEnumeration(t *testing.T) {
	ts := startUsbServer(t, 1)
	conn := dialUsb(t, ts)

	req := make([]byte, 8+32)
	binary.BigEndian.PutUint16(req[0:2], 0x0111)
	binary.BigEndian.PutUint16(req[2:4], 0x8003)
	copy(req[8:], ts.meta[:])
	_, err := conn.Write(req)
	require.NoError(t, err)

	reply := make([]byte, 8+312)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0003), binary.BigEndian.Uint16(reply[2:4]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(reply[4:8]))

	// GET_DESCRIPTOR(device)
	data := submitControl(t, conn, 1, [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}, 18)
	require.Len(t, data, 18)
	assert.Equal(t, []byte{0x5E, 0x04}, data[8:10])
	assert.Equal(t, []byte{0x19, 0x07}, data[10:12])

	// GET_DESCRIPTOR(config)
	data = submitControl(t, conn, 2, [8]byte{0x80, 0x06, 0x00, 0x02, 0x00, 0x00, 0xFF, 0x00}, 255)
	require.NotEmpty(t, data)
	assert.Equal(t, uint16(len(data)), binary.LittleEndian.Uint16(data[2:4]))

	// GET_DESCRIPTOR(string), product
	data = submitControl(t, conn, 3, [8]byte{0x80, 0x06, 0x02, 0x03, 0x00, 0x00, 0xFF, 0x00}, 255)
	require.NotEmpty(t, data)
	assert.Equal(t, uint8(0x03), data[1])
	assert.Equal(t, byte('X'), data[2])

	// Vendor control request returns the wire serial.
	data = submitControl(t, conn, 4, [8]byte{0xC0, 0x01, 0x01, 0x00, 0x00, 0x00, 0x07, 0x00}, 7)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, data)
}
