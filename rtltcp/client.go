package rtltcp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quan-to/slog"
	"github.com/racerxdl/qo100-dedrift/metrics"
)

const handshakeTimeout = time.Second * 2
const defaultDialTimeout = time.Second * 5

var clog = slog.Scope("RTLTCP Client")

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyStreaming = errors.New("already streaming")
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateStreaming
	StateStopped
)

var SessionStateToName = map[SessionState]string{
	StateIdle:       "Idle",
	StateConnecting: "Connecting",
	StateStreaming:  "Streaming",
	StateStopped:    "Stopped",
}

func (s SessionState) String() string {
	return SessionStateToName[s]
}

// Client is a rtl_tcp client session. Tuner parameters can be set at any
// time and are sent to the server on Start.
type Client struct {
	address string

	// DialTimeout bounds the TCP connect in Start
	DialTimeout time.Duration

	mtx        sync.Mutex
	state      SessionState
	conn       net.Conn
	dongleInfo DongleInfo
	params     TunerParameters
	cb         OnSamples
	done       chan struct{}
}

func MakeClient(host string, port int) *Client {
	return &Client{
		address:     net.JoinHostPort(host, strconv.Itoa(port)),
		DialTimeout: defaultDialTimeout,
		state:       StateIdle,
		dongleInfo: DongleInfo{
			TunerType: RtlsdrTunerUnknown,
		},
	}
}

func (client *Client) Address() string {
	return client.address
}

func (client *Client) GetDongleInfo() DongleInfo {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.dongleInfo
}

func (client *Client) GetTunerType() TunerType {
	return client.GetDongleInfo().TunerType
}

func (client *Client) GetTunerGainCount() uint32 {
	return client.GetDongleInfo().TunerGainCount
}

func (client *Client) State() SessionState {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.state
}

func (client *Client) IsStreaming() bool {
	return client.State() == StateStreaming
}

// SendCommand writes cmd to the server. A failed write is returned and
// leaves the connection open; the receive loop detects dead connections.
func (client *Client) SendCommand(cmd Command) error {
	client.mtx.Lock()
	conn := client.conn
	client.mtx.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	return client.send(conn, cmd)
}

func (client *Client) send(conn net.Conn, cmd Command) error {
	n, err := conn.Write(cmd.Bytes())
	metrics.BytesOut.Add(float64(n))
	if err != nil {
		return fmt.Errorf("error sending %s: %w", cmd.Type, err)
	}
	clog.Debug("Sent %s", cmd)
	return nil
}

// Start connects to the server, reads the dongle info, pushes the current
// tuner parameters and starts receiving samples in the background.
func (client *Client) Start(cb OnSamples) error {
	client.mtx.Lock()
	if client.state == StateConnecting || client.state == StateStreaming {
		client.mtx.Unlock()
		return ErrAlreadyStreaming
	}
	prevDone := client.done
	client.state = StateConnecting
	client.mtx.Unlock()

	if prevDone != nil {
		// previous loop ended by itself, make sure it is gone
		<-prevDone
	}

	clog.Debug("Connecting to %s", client.address)
	conn, err := net.DialTimeout("tcp", client.address, client.DialTimeout)
	if err != nil {
		client.setState(StateStopped)
		return fmt.Errorf("error connecting to %s: %w", client.address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	info := client.handshake(conn)
	params := client.GetParameters()

	client.mtx.Lock()
	client.conn = conn
	client.dongleInfo = info
	client.mtx.Unlock()

	for _, cmd := range params.Commands() {
		if err := client.send(conn, cmd); err != nil {
			_ = conn.Close()
			client.mtx.Lock()
			client.conn = nil
			client.state = StateStopped
			client.mtx.Unlock()
			return err
		}
	}

	done := make(chan struct{})
	decoder := NewStreamDecoder(cb)

	client.mtx.Lock()
	client.cb = cb
	client.done = done
	client.state = StateStreaming
	client.mtx.Unlock()

	clog.Info("Streaming from %s (tuner %s, %d gain steps)", client.address, info.TunerType, info.TunerGainCount)
	go client.loop(conn, decoder, done)

	return nil
}

// handshake reads the dongle info. Short or invalid headers are not fatal.
func (client *Client) handshake(conn net.Conn) DongleInfo {
	header := make([]byte, DongleInfoSize)

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	n, err := io.ReadFull(conn, header)
	_ = conn.SetReadDeadline(time.Time{})
	metrics.BytesIn.Add(float64(n))

	info, ok := ParseDongleInfo(header[:n])
	if !ok {
		clog.Debug("Handshake skipped, received %d bytes: %v", n, err)
		return DongleInfo{}
	}

	if !info.Valid() {
		clog.Debug("Invalid dongle magic %q", header[:4])
		return info
	}

	clog.Debug("Received Handshake. Tuner Type: %s", info.TunerType)
	return info
}

// Stop closes the connection and waits for the receive loop to exit.
// Calling it when not streaming does nothing.
func (client *Client) Stop() {
	client.mtx.Lock()
	conn := client.conn
	done := client.done
	client.conn = nil
	client.mtx.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	if done != nil {
		<-done
	}

	client.mtx.Lock()
	client.cb = nil
	client.done = nil
	if client.state != StateIdle {
		client.state = StateStopped
	}
	client.mtx.Unlock()
}

func (client *Client) setState(state SessionState) {
	client.mtx.Lock()
	client.state = state
	client.mtx.Unlock()
}

func (client *Client) loop(conn net.Conn, decoder *StreamDecoder, done chan struct{}) {
	defer close(done)

	err := decoder.Run(meteredReader{conn})
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		clog.Error("Error reading data: %s", err)
	}

	_ = conn.Close()

	client.mtx.Lock()
	if client.conn == conn {
		client.conn = nil
	}
	client.state = StateStopped
	client.mtx.Unlock()

	clog.Info("Stream from %s ended", client.address)
}

type meteredReader struct {
	r io.Reader
}

func (m meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	metrics.BytesIn.Add(float64(n))
	return n, err
}
