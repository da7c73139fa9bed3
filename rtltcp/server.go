package rtltcp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quan-to/slog"
	"github.com/racerxdl/go.fifo"
	"github.com/racerxdl/qo100-dedrift/metrics"
)

const chunkLength = 4096
const maxFifoLength = 64
const txIdleWait = 5 * time.Millisecond

var log = slog.Scope("RTLTCP Server")

var ErrServerRunning = errors.New("already running")

type OnCommand func(sessionId string, cmd Command) bool
type OnConnect func(sessionId string, address string)

// Server emulates a rtl_tcp server. It greets every client with its
// DongleInfo, reports received commands and broadcasts queued samples.
type Server struct {
	address    string
	dongleInfo DongleInfo

	connectionLock sync.Mutex
	connections    []*Session

	running        atomic.Bool
	waitClose      chan struct{}
	serverListener net.Listener
	onCommandCb    OnCommand
	onConnectCb    OnConnect
	bufferFifo     *fifo.Queue
}

func MakeRTLTCPServer(address string) *Server {
	return &Server{
		address:     address,
		connections: make([]*Session, 0),
		dongleInfo: DongleInfo{
			Magic:          DongleMagic,
			TunerType:      RtlsdrTunerR820t,
			TunerGainCount: 0,
		},
		bufferFifo: fifo.NewQueue(),
	}
}

// SetDongleInfo sets the greeting. The magic is kept as given so invalid
// greetings can be emulated.
func (server *Server) SetDongleInfo(info DongleInfo) {
	server.dongleInfo = info
}

func (server *Server) SetOnConnect(cb OnConnect) {
	server.onConnectCb = cb
}

func (server *Server) SetOnCommand(cb OnCommand) {
	server.onCommandCb = cb
}

// Addr returns the listening address, or nil if not started
func (server *Server) Addr() net.Addr {
	if server.serverListener == nil {
		return nil
	}
	return server.serverListener.Addr()
}

func (server *Server) Start() error {
	if server.running.Load() {
		return ErrServerRunning
	}

	l, err := net.Listen("tcp", server.address)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", server.address, err)
	}
	server.serverListener = l
	log.Info("Listening on %s", l.Addr())
	server.waitClose = make(chan struct{})
	server.running.Store(true)
	go server.loop()
	go server.txLoop()
	return nil
}

// Stop closes the listener and every session
func (server *Server) Stop() {
	if !server.running.CompareAndSwap(true, false) {
		return
	}

	log.Info("Sent close signal to server. Waiting it to finish")
	_ = server.serverListener.Close()
	<-server.waitClose

	server.connectionLock.Lock()
	for _, v := range server.connections {
		_ = v.conn.Close()
	}
	server.connectionLock.Unlock()
}

// Sessions returns the number of connected clients
func (server *Server) Sessions() int {
	server.connectionLock.Lock()
	defer server.connectionLock.Unlock()
	return len(server.connections)
}

// Broadcast queues raw interleaved u8 samples to every connected client
func (server *Server) Broadcast(data []byte) bool {
	if server.bufferFifo.Len() > maxFifoLength {
		log.Error("TX Fifo full!")
		return false
	}

	b := make([]byte, len(data))
	copy(b, data)
	server.bufferFifo.Add(b)
	return true
}

// ComplexBroadcast quantizes samples to u8 pairs, Q first, and queues them
func (server *Server) ComplexBroadcast(data []complex64) bool {
	iqBytes := make([]byte, len(data)*2)

	for i, v := range data {
		iqBytes[i*2] = quantize(imag(v))
		iqBytes[i*2+1] = quantize(real(v))
	}

	return server.Broadcast(iqBytes)
}

func quantize(v float32) uint8 {
	q := v*127.5 + 127.5 + 0.5
	if q < 0 {
		q = 0
	}
	if q > 255 {
		q = 255
	}
	return uint8(q)
}

func (server *Server) broadcast(data []byte) {
	server.connectionLock.Lock()
	defer server.connectionLock.Unlock()

	for s := 0; s < len(data); s += chunkLength {
		e := s + chunkLength
		if e > len(data) {
			e = len(data)
		}
		payload := data[s:e]

		for _, v := range server.connections {
			n, _ := v.conn.Write(payload)
			metrics.BytesOut.Add(float64(n))
		}
	}
}

func (server *Server) txLoop() {
	for server.running.Load() {
		if server.bufferFifo.Len() > 0 {
			b := server.bufferFifo.Next().([]byte)
			server.broadcast(b)
		} else {
			time.Sleep(txIdleWait)
		}
	}
}

func (server *Server) loop() {
	for server.running.Load() {
		conn, err := server.serverListener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error("Error accepting: %s", err)
			}
			continue
		}
		go server.handleRequest(conn)
	}
	log.Info("Server finished listening")
	close(server.waitClose)
}

func (server *Server) handlePacket(session *Session, cmd Command) {
	session.log.Debug("Received %s with arg (%d) %v", cmd.Type, cmd.Uint32(), cmd.Param)

	if server.onCommandCb != nil {
		ok := server.onCommandCb(session.id, cmd)
		if !ok {
			_ = session.conn.Close()
		}
	}
}

func (server *Server) removeSession(session *Session) {
	server.connectionLock.Lock()
	defer server.connectionLock.Unlock()
	for i, v := range server.connections {
		if v.id == session.id {
			server.connections = append(server.connections[:i], server.connections[i+1:]...)
			break
		}
	}
}

func (server *Server) handleRequest(conn net.Conn) {
	session := &Session{
		id:   uuid.New().String(),
		conn: conn,
		log:  slog.Scope(conn.RemoteAddr().String()),
	}
	clog := session.log

	clog.Info("Received connection")

	clog.Debug("Sending greeting with DongleInfo")
	n, err := conn.Write(server.dongleInfo.Bytes())
	metrics.BytesOut.Add(float64(n))
	if err != nil {
		clog.Error("Error sending greeting: %s", err)
		_ = conn.Close()
		return
	}

	server.connectionLock.Lock()
	server.connections = append(server.connections, session)
	server.connectionLock.Unlock()

	if server.onConnectCb != nil {
		server.onConnectCb(session.id, session.RemoteAddr())
	}

	metrics.TotalConnections.Inc()
	metrics.Connections.Inc()

	buffer := make([]byte, CommandSize)
	for {
		n, err := io.ReadFull(conn, buffer)
		metrics.BytesIn.Add(float64(n))
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				clog.Error("Error receiving data: %s", err)
			}
			break
		}

		cmd, _ := ParseCommand(buffer)
		server.handlePacket(session, cmd)
	}

	server.removeSession(session)
	_ = conn.Close()

	metrics.Connections.Dec()
	clog.Info("Connection closed.")
}
