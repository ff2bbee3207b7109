package auth

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Conn wraps a net.Conn with authenticated encryption. Each record is
// length-prefixed: 4-byte length, 12-byte nonce, ciphertext. The nonce's
// first byte tags the sending direction so the two streams of a session
// never produce the same (key, nonce) pair, and a record reflected back to
// its sender is rejected.
type Conn struct {
	net.Conn
	aead    cipher.AEAD
	sendDir byte
	recvDir byte
	sendCtr uint64
	recvBuf bytes.Buffer
	mu      sync.Mutex
}

const (
	nonceSize     = chacha20poly1305.NonceSize
	maxRecordSize = 2 * 1024 * 1024

	dirClient = 0x01
	dirServer = 0x02
)

// ErrBadRecord is returned when a record's framing is invalid (length out of
// bounds, or direction tag not the peer's).
var ErrBadRecord = errors.New("auth: malformed record")

// WrapConn upgrades conn to an encrypted connection keyed by sessionKey.
// server selects which direction tag this side sends with; the two ends of
// a connection must pass opposite values.
func WrapConn(conn net.Conn, sessionKey []byte, server bool) (net.Conn, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}
	c := &Conn{Conn: conn, aead: aead, sendDir: dirClient, recvDir: dirServer}
	if server {
		c.sendDir, c.recvDir = dirServer, dirClient
	}
	return c, nil
}

func (s *Conn) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := make([]byte, nonceSize)
	nonce[0] = s.sendDir
	binary.BigEndian.PutUint64(nonce[4:], s.sendCtr)
	s.sendCtr++

	ct := s.aead.Seal(nil, nonce, p, nil)

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(nonce)+len(ct)))

	if i, err := s.Conn.Write(hdr[:]); err != nil {
		return i, err
	}
	if i, err := s.Conn.Write(nonce); err != nil {
		return i, err
	}
	if i, err := s.Conn.Write(ct); err != nil {
		return i, err
	}

	return len(p), nil
}

func (s *Conn) Read(p []byte) (int, error) {
	if s.recvBuf.Len() == 0 {
		var hdr [4]byte
		if i, err := io.ReadFull(s.Conn, hdr[:]); err != nil {
			return i, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		// The prefix is unauthenticated: a record must at least hold a
		// nonce, and anything huge is garbage, not a legitimate record.
		if length < nonceSize || length > maxRecordSize {
			return 0, ErrBadRecord
		}

		pkt := make([]byte, length)
		if i, err := io.ReadFull(s.Conn, pkt); err != nil {
			return i, err
		}
		if pkt[0] != s.recvDir {
			return 0, ErrBadRecord
		}

		pt, err := s.aead.Open(nil, pkt[:nonceSize], pkt[nonceSize:], nil)
		if err != nil {
			return 0, err
		}

		s.recvBuf.Write(pt)
	}
	return s.recvBuf.Read(p)
}
