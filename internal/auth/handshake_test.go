package auth_test

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/9names/xrecv/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundtrip(t *testing.T) {
	key, err := auth.DeriveKey("test123")
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type result struct {
		clientNonce []byte
		serverNonce []byte
		err         error
	}
	serverDone := make(chan result, 1)
	go func() {
		br := bufio.NewReader(serverConn)
		ok, err := auth.IsHandshake(br)
		if err != nil || !ok {
			serverDone <- result{err: err}
			return
		}
		cn, sn, err := auth.ServerHandshake(br, serverConn, key)
		serverDone <- result{clientNonce: cn, serverNonce: sn, err: err}
	}()

	clientNonce, serverNonce, err := auth.ClientHandshake(clientConn, clientConn, key)
	require.NoError(t, err)
	require.Len(t, clientNonce, auth.NonceSize)
	require.Len(t, serverNonce, auth.NonceSize)

	srv := <-serverDone
	require.NoError(t, srv.err)
	assert.Equal(t, clientNonce, srv.clientNonce)
	assert.Equal(t, serverNonce, srv.serverNonce)

	// Both sides derive the same session key.
	assert.Equal(t,
		auth.DeriveSessionKey(key, serverNonce, clientNonce),
		auth.DeriveSessionKey(key, srv.serverNonce, srv.clientNonce))
}

func TestHandshakeRejectsWrongKey(t *testing.T) {
	serverKey, err := auth.DeriveKey("server-secret")
	require.NoError(t, err)
	clientKey, err := auth.DeriveKey("wrong-guess")
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(serverConn)
		_, _, err := auth.ServerHandshake(br, serverConn, serverKey)
		serverErr <- err
		serverConn.Close()
	}()

	_, _, err = auth.ClientHandshake(clientConn, clientConn, clientKey)
	assert.Error(t, err)
	assert.ErrorIs(t, <-serverErr, auth.ErrUnauthorized)
}

func TestIsHandshake(t *testing.T) {
	type testCase struct {
		name     string
		input    []byte
		expected bool
	}

	cases := []testCase{
		{
			name:     "handshake magic",
			input:    append([]byte(auth.HandshakeMagic), 0xAA, 0xBB),
			expected: true,
		},
		{
			name:     "something else",
			input:    []byte("GET / HTTP/1.1\r\n"),
			expected: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			br := bufio.NewReader(bytes.NewReader(tc.input))
			ok, err := auth.IsHandshake(br)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}
