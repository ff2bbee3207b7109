package auth

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const (
	// HandshakeMagic opens every producer connection.
	HandshakeMagic = "xRV1\x00"
	NonceSize      = 32
	authContext    = "xrecv-auth-v1"
)

// ErrUnauthorized is returned when a client's HMAC does not verify.
var ErrUnauthorized = errors.New("auth: invalid key")

// ClientHandshake performs the client side of the handshake: it sends the
// magic, a fresh nonce and an HMAC proof, then reads the server's nonce.
func ClientHandshake(r io.Reader, w io.Writer, key []byte) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("handshake: missing key")
	}

	clientNonce = make([]byte, NonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, nil, fmt.Errorf("generate client nonce: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(clientNonce)

	msg := append([]byte(HandshakeMagic), clientNonce...)
	msg = append(msg, mac.Sum(nil)...)
	if _, err := w.Write(msg); err != nil {
		return nil, nil, fmt.Errorf("write handshake: %w", err)
	}

	respPrefix := make([]byte, 3)
	if _, err := io.ReadFull(r, respPrefix); err != nil {
		return nil, nil, fmt.Errorf("read handshake response: %w", err)
	}
	if string(respPrefix) != "OK\x00" {
		return nil, nil, ErrUnauthorized
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(r, serverNonce); err != nil {
		return nil, nil, fmt.Errorf("read server nonce: %w", err)
	}
	return clientNonce, serverNonce, nil
}

// ServerHandshake performs the server side: it consumes the magic, verifies
// the client's HMAC and replies "OK\0" plus a fresh server nonce.
func ServerHandshake(r *bufio.Reader, w io.Writer, key []byte) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("handshake: missing key")
	}

	if _, err := r.Discard(len(HandshakeMagic)); err != nil {
		return nil, nil, fmt.Errorf("discard handshake magic: %w", err)
	}

	clientNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(r, clientNonce); err != nil {
		return nil, nil, fmt.Errorf("read client nonce: %w", err)
	}

	clientAuth := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, clientAuth); err != nil {
		return nil, nil, fmt.Errorf("read client auth: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(clientNonce)
	if !hmac.Equal(clientAuth, mac.Sum(nil)) {
		return nil, nil, ErrUnauthorized
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, nil, fmt.Errorf("generate server nonce: %w", err)
	}
	response := append([]byte("OK\x00"), serverNonce...)
	if _, err := w.Write(response); err != nil {
		return nil, nil, fmt.Errorf("write response: %w", err)
	}

	return clientNonce, serverNonce, nil
}

// IsHandshake checks whether the next bytes in r match the handshake magic.
func IsHandshake(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(len(HandshakeMagic))
	if err != nil {
		return false, err
	}
	return string(b) == HandshakeMagic, nil
}
