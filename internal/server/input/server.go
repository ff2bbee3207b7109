// Package input implements the authenticated TCP server that producers use
// to stream controller state and receive rumble feedback.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/9names/xrecv/internal/auth"
	"github.com/9names/xrecv/xinput"
)

// Wire format, after the handshake and encryption wrap:
//   producer -> server: [pad u8][12-byte state frame], repeated
//   server -> producer: [pad u8][strong u8][weak u8] on every rumble command
const (
	frameRecordSize  = 1 + xinput.FrameSize
	rumbleRecordSize = 3
)

type session struct {
	conn net.Conn
	mu   sync.Mutex
}

func (s *session) sendRumble(pad uint8, strong, weak uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Write([]byte{pad, strong, weak})
	return err
}

type Server struct {
	config   *ServerConfig
	logger   *slog.Logger
	receiver *xinput.Receiver
	key      []byte

	ln        net.Listener
	ready     chan struct{}
	readyOnce sync.Once

	sessionsMu sync.Mutex
	sessions   map[*session]struct{}
}

func New(config ServerConfig, receiver *xinput.Receiver, key []byte, logger *slog.Logger) *Server {
	return &Server{
		config:   &config,
		logger:   logger,
		receiver: receiver,
		key:      key,
		ready:    make(chan struct{}),
		sessions: make(map[*session]struct{}),
	}
}

// ListenAndServe starts the input server and handles producer connections.
// Rumble commands arriving from the host are broadcast to every connected
// producer.
func (s *Server) ListenAndServe() error {
	for i := 0; i < s.receiver.Controllers(); i++ {
		pad := uint8(i)
		s.receiver.Controller(i).SetRumbleFunc(func(strong, weak uint8) {
			s.broadcastRumble(pad, strong, weak)
		})
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("input server listening", "addr", s.config.Addr)

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("input server stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		go func() {
			if err := s.handleConn(c); err != nil {
				if isDisconnect(err) {
					s.logger.Info("producer disconnected", "remote", c.RemoteAddr())
				} else {
					s.logger.Error("producer connection error", "remote", c.RemoteAddr(), "error", err)
				}
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has bound its
// listen address and accepts connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listen address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.ln.Addr()
	default:
		return nil
	}
}

// Close stops the input server by closing its listener and all sessions.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.sessionsMu.Lock()
	for sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.sessionsMu.Unlock()
	return err
}

func (s *Server) broadcastRumble(pad, strong, weak uint8) {
	s.sessionsMu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		if err := sess.sendRumble(pad, strong, weak); err != nil {
			s.logger.Debug("rumble push failed", "error", err)
		}
	}
}

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(s.config.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	br := bufio.NewReader(conn)
	ok, err := auth.IsHandshake(br)
	if err != nil {
		return fmt.Errorf("peek handshake: %w", err)
	}
	if !ok {
		return fmt.Errorf("protocol violation: missing handshake")
	}
	clientNonce, serverNonce, err := auth.ServerHandshake(br, conn, s.key)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	sessionKey := auth.DeriveSessionKey(s.key, serverNonce, clientNonce)
	sc, err := auth.WrapConn(conn, sessionKey, true)
	if err != nil {
		return fmt.Errorf("wrap connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	s.logger.Info("producer connected", "remote", conn.RemoteAddr())

	sess := &session{conn: sc}
	s.sessionsMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessionsMu.Unlock()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, sess)
		s.sessionsMu.Unlock()
	}()

	var rec [frameRecordSize]byte
	for {
		if _, err := io.ReadFull(sc, rec[:]); err != nil {
			return err
		}
		pad := int(rec[0])
		if pad >= s.receiver.Controllers() {
			s.logger.Debug("frame for unknown pad", "pad", pad)
			continue
		}
		var f xinput.Frame
		copy(f[:], rec[1:])
		s.receiver.Controller(pad).PublishFrame(f)
	}
}

func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "connection reset by peer") ||
		strings.Contains(e, "forcibly closed")
}
