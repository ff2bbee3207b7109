// Package inputclient is the Go client for the xrecv input stream server.
// Producers use it to push controller state and read rumble feedback.
package inputclient

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/9names/xrecv/internal/auth"
	"github.com/9names/xrecv/xinput"
)

// Client is a connection to an xrecv input server. Methods are safe for
// concurrent use; a typical producer sends frames from one goroutine and
// reads rumble from another.
type Client struct {
	conn net.Conn
	wmu  sync.Mutex
	rmu  sync.Mutex
}

// Dial connects to an xrecv input server, authenticates with password and
// upgrades the connection to an encrypted session.
func Dial(addr, password string) (*Client, error) {
	key, err := auth.DeriveKey(password)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	clientNonce, serverNonce, err := auth.ClientHandshake(conn, conn, key)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	sessionKey := auth.DeriveSessionKey(key, serverNonce, clientNonce)
	sc, err := auth.WrapConn(conn, sessionKey, false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wrap connection: %w", err)
	}
	return &Client{conn: sc}, nil
}

// SendFrame pushes a packed state frame for the given pad (0-based).
func (c *Client) SendFrame(pad uint8, f xinput.Frame) error {
	var rec [1 + xinput.FrameSize]byte
	rec[0] = pad
	copy(rec[1:], f[:])
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(rec[:])
	return err
}

// SendGamepad packs and pushes a controller snapshot for the given pad.
func (c *Client) SendGamepad(pad uint8, g xinput.Gamepad) error {
	return c.SendFrame(pad, g.Frame())
}

// ReadRumble blocks until the server pushes a rumble command and returns the
// pad it is for and the motor intensities.
func (c *Client) ReadRumble() (pad, strong, weak uint8, err error) {
	var rec [3]byte
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if _, err := io.ReadFull(c.conn, rec[:]); err != nil {
		return 0, 0, 0, err
	}
	return rec[0], rec[1], rec[2], nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
