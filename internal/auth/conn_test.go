package auth_test

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/9names/xrecv/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to connect to test server: %v", err)
	}
	serverConn, err := ln.Accept()
	if err != nil {
		t.Fatalf("failed to accept connection: %v", err)
	}
	t.Cleanup(func() { _ = clientConn.Close() })
	t.Cleanup(func() { _ = serverConn.Close() })
	return clientConn, serverConn
}

func TestConn(t *testing.T) {

	type testCase struct {
		name        string
		setupFn     func(t *testing.T, clientConn net.Conn, serverConn net.Conn) (clientKey []byte, serverKey []byte)
		input       []byte
		expected    []byte
		expectedErr error
	}

	derive := func(t *testing.T, password string) []byte {
		key, err := auth.DeriveKey(password)
		if err != nil {
			t.Fatalf("failed to derive key: %v", err)
		}
		return key
	}

	testCases := []testCase{
		{
			name: "valid read",
			setupFn: func(t *testing.T, clientConn, serverConn net.Conn) ([]byte, []byte) {
				key := derive(t, "test123")
				return key, key
			},
			input:    []byte("Hello, World!"),
			expected: []byte("Hello, World!"),
		},
		{
			name: "differing keys",
			setupFn: func(t *testing.T, clientConn, serverConn net.Conn) ([]byte, []byte) {
				return derive(t, "test123"), derive(t, "123test")
			},
			input:       []byte("x"),
			expected:    nil,
			expectedErr: errors.New("chacha20poly1305: message authentication failed"),
		},
		{
			name: "bad key length (client)",
			setupFn: func(t *testing.T, clientConn, serverConn net.Conn) ([]byte, []byte) {
				return []byte{1, 2, 3}, derive(t, "test123")
			},
			input:       []byte("x"),
			expected:    nil,
			expectedErr: errors.New("chacha20poly1305: bad key length"),
		},
		{
			name: "client closed before write",
			setupFn: func(t *testing.T, clientConn, serverConn net.Conn) ([]byte, []byte) {
				key := derive(t, "test123")
				_ = clientConn.Close()
				return key, key
			},
			input:       []byte("x"),
			expected:    nil,
			expectedErr: errors.New("use of closed network connection"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {

			clientConn, serverConn := connPair(t)
			clientKey, serverKey := tc.setupFn(t, clientConn, serverConn)

			wrappedServerConn, err := auth.WrapConn(serverConn, serverKey, true)
			if err != nil {
				if tc.expectedErr != nil {
					assert.ErrorContains(t, err, tc.expectedErr.Error())
				} else {
					t.Fatalf("failed to wrap server conn: %v", err)
				}
				return
			}
			wrappedClientConn, err := auth.WrapConn(clientConn, clientKey, false)
			if err != nil {
				if tc.expectedErr != nil {
					assert.ErrorContains(t, err, tc.expectedErr.Error())
				} else {
					t.Fatalf("failed to wrap client conn: %v", err)
				}
				return
			}

			_, err = wrappedClientConn.Write(tc.input)
			if err != nil {
				if tc.expectedErr != nil {
					assert.ErrorContains(t, err, tc.expectedErr.Error())
				} else {
					t.Fatalf("client write error: %v", err)
				}
				return
			}
			buf := make([]byte, len(tc.expected))
			_, err = wrappedServerConn.Read(buf)
			if err != nil {
				if tc.expectedErr != nil {
					assert.ErrorContains(t, err, tc.expectedErr.Error())
				} else {
					t.Errorf("server read error: %v", err)
				}
				return
			}
			assert.Equal(t, tc.expected, buf)

		})
	}

}

func TestConnBothDirections(t *testing.T) {
	key, err := auth.DeriveKey("test123")
	require.NoError(t, err)

	clientConn, serverConn := connPair(t)
	sc, err := auth.WrapConn(serverConn, key, true)
	require.NoError(t, err)
	cc, err := auth.WrapConn(clientConn, key, false)
	require.NoError(t, err)

	_, err = cc.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = sc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), buf)

	_, err = sc.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = cc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), buf)
}

// A record whose length prefix is shorter than a nonce must be rejected as
// malformed, not sliced.
func TestConnRejectsShortRecord(t *testing.T) {
	key, err := auth.DeriveKey("test123")
	require.NoError(t, err)

	for _, length := range []uint32{0, 1, 5, 11} {
		clientConn, serverConn := connPair(t)
		sc, err := auth.WrapConn(serverConn, key, true)
		require.NoError(t, err)

		var rec [4 + 11]byte
		binary.BigEndian.PutUint32(rec[0:4], length)
		_, err = clientConn.Write(rec[:4+length])
		require.NoError(t, err)

		_ = sc.SetReadDeadline(time.Now().Add(time.Second))
		buf := make([]byte, 1)
		_, err = sc.Read(buf)
		assert.ErrorIs(t, err, auth.ErrBadRecord, "length %d", length)
	}
}

// Records tagged with the reader's own direction (a reflected stream) are
// rejected even though they would pass authentication.
func TestConnRejectsReflectedRecord(t *testing.T) {
	key, err := auth.DeriveKey("test123")
	require.NoError(t, err)

	clientConn, serverConn := connPair(t)
	sc, err := auth.WrapConn(serverConn, key, true)
	require.NoError(t, err)
	// Both ends wrapped with the same role: writes carry the server tag,
	// which the server must not accept back.
	reflected, err := auth.WrapConn(clientConn, key, true)
	require.NoError(t, err)

	_, err = reflected.Write([]byte("x"))
	require.NoError(t, err)

	_ = sc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, err = sc.Read(buf)
	assert.ErrorIs(t, err, auth.ErrBadRecord)
}
