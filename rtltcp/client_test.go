package rtltcp

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validHeader = []byte{'R', 'T', 'L', '0', 0, 0, 0, 5, 0, 0, 0, 29}

// fakeServer accepts a single connection, sends greeting in one write and
// forwards everything the client sends to commands.
type fakeServer struct {
	listener net.Listener
	conn     chan net.Conn
	commands chan Command
}

func startFakeServer(t *testing.T, greeting []byte) *fakeServer {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeServer{
		listener: l,
		conn:     make(chan net.Conn, 1),
		commands: make(chan Command, 64),
	}

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		fs.conn <- conn
		if len(greeting) > 0 {
			_, _ = conn.Write(greeting)
		}
		buffer := make([]byte, CommandSize)
		for {
			if _, err := io.ReadFull(conn, buffer); err != nil {
				return
			}
			cmd, _ := ParseCommand(buffer)
			fs.commands <- cmd
		}
	}()

	t.Cleanup(func() {
		_ = l.Close()
		select {
		case conn := <-fs.conn:
			_ = conn.Close()
		default:
		}
	})

	return fs
}

func (fs *fakeServer) client() *Client {
	addr := fs.listener.Addr().(*net.TCPAddr)
	return MakeClient(addr.IP.String(), addr.Port)
}

func (fs *fakeServer) accepted(t *testing.T) net.Conn {
	select {
	case conn := <-fs.conn:
		fs.conn <- conn
		return conn
	case <-time.After(time.Second * 5):
		t.Fatal("no connection accepted")
	}
	return nil
}

func (fs *fakeServer) nextCommands(t *testing.T, n int) []Command {
	cmds := make([]Command, 0, n)
	for len(cmds) < n {
		select {
		case cmd := <-fs.commands:
			cmds = append(cmds, cmd)
		case <-time.After(time.Second * 5):
			t.Fatalf("received %d of %d commands", len(cmds), n)
		}
	}
	return cmds
}

func TestClientEndToEnd(t *testing.T) {
	greeting := append(append([]byte{}, validHeader...), 0x00, 0xFF, 0x80, 0x80)
	fs := startFakeServer(t, greeting)
	client := fs.client()

	var mtx sync.Mutex
	var batches [][]complex64
	got := make(chan struct{}, 1)

	require.NoError(t, client.Start(func(samples []complex64) {
		mtx.Lock()
		batches = append(batches, append([]complex64(nil), samples...))
		mtx.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	}))
	defer client.Stop()

	select {
	case <-got:
	case <-time.After(time.Second * 5):
		t.Fatal("no samples received")
	}

	assert.True(t, client.IsStreaming())
	assert.Equal(t, RtlsdrTunerR820t, client.GetTunerType())
	assert.Equal(t, uint32(29), client.GetTunerGainCount())

	client.Stop()
	assert.False(t, client.IsStreaming())
	assert.Equal(t, StateStopped, client.State())

	mtx.Lock()
	defer mtx.Unlock()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, complex(SampleValue(0xFF), SampleValue(0x00)), batches[0][0])
	assert.Equal(t, complex(SampleValue(0x80), SampleValue(0x80)), batches[0][1])
}

func TestClientReplaysParameters(t *testing.T) {
	fs := startFakeServer(t, validHeader)
	client := fs.client()

	require.NoError(t, client.SetFrequency(106300000))
	require.NoError(t, client.SetFrequencyCorrection(-2))
	require.NoError(t, client.SetSampleRate(2400000))
	require.NoError(t, client.SetRtlAgc(true))
	require.NoError(t, client.SetTunerAgc(true))
	require.NoError(t, client.SetTunerGainIndex(12))

	require.NoError(t, client.Start(nil))
	defer client.Stop()

	cmds := fs.nextCommands(t, 6)
	assert.Equal(t, []Command{
		MakeCommand(SetSampleRate, 2400000),
		MakeCommand(SetFrequencyCorrection, uint32(0xFFFFFFFE)),
		MakeCommand(SetFrequency, 106300000),
		MakeCommand(SetAgcMode, 1),
		MakeCommand(SetGainMode, 0),
		MakeCommand(SetTunerGainByIndex, 12),
	}, cmds)
}

func TestClientSettersWhileStreaming(t *testing.T) {
	fs := startFakeServer(t, validHeader)
	client := fs.client()

	require.NoError(t, client.Start(nil))
	defer client.Stop()
	fs.nextCommands(t, 6)

	require.NoError(t, client.SetTunerAgc(true))
	require.NoError(t, client.SetTunerAgc(false))
	require.NoError(t, client.SetFrequency(100000000))
	require.NoError(t, client.SetTunerGain(197))
	require.NoError(t, client.SetBiasTee(true))

	cmds := fs.nextCommands(t, 5)
	assert.Equal(t, []byte{0x03, 0, 0, 0, 0}, cmds[0].Bytes())
	assert.Equal(t, []byte{0x03, 0, 0, 0, 1}, cmds[1].Bytes())
	assert.Equal(t, []byte{0x01, 0x05, 0xF5, 0xE1, 0x00}, cmds[2].Bytes())
	assert.Equal(t, MakeCommand(SetGain, 197), cmds[3])
	assert.Equal(t, MakeCommand(SetBiasTee, 1), cmds[4])

	assert.False(t, client.GetTunerAgc())
	assert.Equal(t, int64(100000000), client.GetFrequency())
}

func TestClientSettersWithoutConnection(t *testing.T) {
	client := MakeClient("127.0.0.1", 1234)

	assert.NoError(t, client.SetFrequency(433920000))
	assert.NoError(t, client.SetSampleRate(1024000))
	assert.NoError(t, client.SetTunerGainIndex(3))
	assert.Equal(t, int64(433920000), client.GetFrequency())
	assert.Equal(t, uint32(1024000), client.GetSampleRate())
	assert.Equal(t, uint32(3), client.GetTunerGainIndex())

	assert.ErrorIs(t, client.SendCommand(MakeCommand(SetFrequency, 1)), ErrNotConnected)
	assert.ErrorIs(t, client.SetOffsetTuning(true), ErrNotConnected)
}

func TestClientBadMagic(t *testing.T) {
	fs := startFakeServer(t, []byte{'X', 'X', 'X', 'X', 0, 0, 0, 5, 0, 0, 0, 29})
	client := fs.client()

	require.NoError(t, client.Start(nil))
	defer client.Stop()

	assert.True(t, client.IsStreaming())
	assert.Equal(t, DongleInfo{}, client.GetDongleInfo())
	assert.Equal(t, RtlsdrTunerUnknown, client.GetTunerType())
	assert.Equal(t, uint32(0), client.GetTunerGainCount())
}

func TestClientShortHeader(t *testing.T) {
	fs := startFakeServer(t, nil)
	client := fs.client()

	go func() {
		conn := <-fs.conn
		fs.conn <- conn
		_, _ = conn.Write([]byte{'R', 'T', 'L'})
		_ = conn.(*net.TCPConn).CloseWrite()
	}()

	require.NoError(t, client.Start(nil))
	defer client.Stop()

	assert.Equal(t, DongleInfo{}, client.GetDongleInfo())
	fs.nextCommands(t, 6)

	// server closed its side, the loop ends by itself
	require.Eventually(t, func() bool {
		return client.State() == StateStopped
	}, time.Second*5, time.Millisecond*10)
	assert.False(t, client.IsStreaming())
}

func TestClientRemoteClose(t *testing.T) {
	fs := startFakeServer(t, validHeader)
	client := fs.client()

	require.NoError(t, client.Start(nil))
	defer client.Stop()

	conn := fs.accepted(t)
	fs.nextCommands(t, 6)
	_ = conn.Close()

	require.Eventually(t, func() bool {
		return !client.IsStreaming()
	}, time.Second*5, time.Millisecond*10)
	assert.Equal(t, StateStopped, client.State())
	assert.ErrorIs(t, client.SendCommand(MakeCommand(SetFrequency, 1)), ErrNotConnected)
}

func TestClientStartTwice(t *testing.T) {
	fs := startFakeServer(t, validHeader)
	client := fs.client()

	require.NoError(t, client.Start(nil))
	defer client.Stop()

	assert.ErrorIs(t, client.Start(nil), ErrAlreadyStreaming)
}

func TestClientConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	client := MakeClient(addr.IP.String(), addr.Port)
	client.DialTimeout = time.Second

	assert.Error(t, client.Start(nil))
	assert.False(t, client.IsStreaming())
	assert.Equal(t, StateStopped, client.State())
}

func TestClientStopIdempotent(t *testing.T) {
	client := MakeClient("127.0.0.1", 1234)
	client.Stop()
	client.Stop()
	assert.False(t, client.IsStreaming())
	assert.Equal(t, StateIdle, client.State())

	fs := startFakeServer(t, validHeader)
	client = fs.client()
	require.NoError(t, client.Start(nil))
	client.Stop()
	client.Stop()
	assert.False(t, client.IsStreaming())
	assert.Equal(t, StateStopped, client.State())
}
