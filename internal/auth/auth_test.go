package auth_test

import (
	"testing"

	"github.com/9names/xrecv/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestGenKey(t *testing.T) {

	key, err := auth.GenerateKey()
	assert.NoError(t, err)
	assert.Len(t, key, auth.AutoGenKeyLength)
	assert.Regexp(t, "^[0-9A-Za-z]{16}$", key)

}

func BenchmarkGenKey(b *testing.B) {
	var key string
	var err error
	for i := 0; i < b.N; i++ {
		key, err = auth.GenerateKey()
	}
	assert.NoError(b, err)
	assert.Len(b, key, auth.AutoGenKeyLength)
}

func TestDeriveKey(t *testing.T) {
	key, err := auth.DeriveKey("password123")
	assert.NoError(t, err)
	assert.Len(t, key, 32)

	// Deterministic for the same password, distinct for another.
	key2, err := auth.DeriveKey("password123")
	assert.NoError(t, err)
	assert.Equal(t, key, key2)

	other, err := auth.DeriveKey("password124")
	assert.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = auth.DeriveKey("")
	assert.EqualError(t, err, "password cannot be empty")
}

func TestDeriveSessionKey(t *testing.T) {
	key := make([]byte, 32)
	serverNonce := make([]byte, 32)
	clientNonce := make([]byte, 32)

	for i := range key {
		key[i] = byte(i)
		serverNonce[i] = byte(i + 10)
		clientNonce[i] = byte(i + 20)
	}

	sessionKey := auth.DeriveSessionKey(key, serverNonce, clientNonce)
	assert.Len(t, sessionKey, 32)

	sessionKey2 := auth.DeriveSessionKey(key, serverNonce, clientNonce)
	assert.Equal(t, sessionKey, sessionKey2)

	clientNonce[0] = 99
	sessionKey3 := auth.DeriveSessionKey(key, serverNonce, clientNonce)
	assert.NotEqual(t, sessionKey, sessionKey3)
}
