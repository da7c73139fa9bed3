package rtltcp

import (
	"net"

	"github.com/quan-to/slog"
)

// Session is a client connected to the Server
type Session struct {
	id   string
	conn net.Conn
	log  slog.Instance
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
