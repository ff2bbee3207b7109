// Package auth implements the shared-key handshake and transport encryption
// for producer stream connections.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	AutoGenKeyLength = 16
	base62Chars      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	pbkdf2Iterations = 100000
	pbkdf2Salt       = "xrecv-key-v1"
)

// GenerateKey creates a random 16-char base62 key.
func GenerateKey() (string, error) {
	randomBytes := make([]byte, AutoGenKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	key := make([]byte, AutoGenKeyLength)
	for i, b := range randomBytes {
		key[i] = base62Chars[int(b)%62]
	}

	return string(key), nil
}

// DeriveKey uses PBKDF2 to stretch any password to 32 bytes.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	return pbkdf2.Key(
		[]byte(password),
		[]byte(pbkdf2Salt),
		pbkdf2Iterations,
		32,
		sha256.New,
	), nil
}

// DeriveSessionKey creates a unique session key from key and nonces.
// SHA mixing is used for easier client implementations.
func DeriveSessionKey(key, serverNonce, clientNonce []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(serverNonce)
	h.Write(clientNonce)
	h.Write([]byte("xrecv-session-v1"))
	return h.Sum(nil)
}
