package transport

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// eventQueue collects posted events so the test goroutine can run them, the
// way the engine loop would.
type eventQueue chan func()

func (q eventQueue) poster() Poster {
	return PosterFunc(func(fn func()) bool {
		q <- fn
		return true
	})
}

func (q eventQueue) drainUntil(t *testing.T, done func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case fn := <-q:
			fn()
		case <-deadline:
			t.Fatal("timed out waiting for socket events")
		}
	}
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return lis, lis.Addr().(*net.TCPAddr).Port
}

func TestTCPSocket_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	lis, port := listen(t)
	defer lis.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n{\"ok\":true}"))
	}()

	events := make(eventQueue, 16)
	d := NewTCPDialer(events.poster(), time.Second, nil)

	var (
		sock         Socket
		connected    bool
		disconnected bool
		data         []byte
		sockErr      error
	)
	sock, err := d.NewSocket(Handlers{
		OnConnect: func() {
			connected = true
			sockErr = sock.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
		},
		OnData:       func(p []byte) { data = append(data, p...) },
		OnError:      func(err error) { sockErr = err },
		OnDisconnect: func() { disconnected = true },
	})
	require.NoError(t, err)
	require.True(t, sock.Connect("127.0.0.1", port))

	events.drainUntil(t, func() bool { return disconnected || sockErr != nil })
	sock.Close(false)

	require.NoError(t, sockErr)
	assert.True(t, connected)
	assert.Equal(t, "GET / HTTP/1.1\r\n", <-received)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n\r\n{\"ok\":true}", string(data))
}

func TestTCPSocket_ConnectRefused(t *testing.T) {
	defer goleak.VerifyNone(t)

	lis, port := listen(t)
	lis.Close()

	events := make(eventQueue, 4)
	d := NewTCPDialer(events.poster(), time.Second, nil)

	var sockErr error
	sock, err := d.NewSocket(Handlers{OnError: func(err error) { sockErr = err }})
	require.NoError(t, err)
	require.True(t, sock.Connect("127.0.0.1", port))

	events.drainUntil(t, func() bool { return sockErr != nil })
	sock.Close(true)
	assert.Error(t, sockErr)
}

func TestTCPSocket_ConnectRejectsBadTarget(t *testing.T) {
	d := NewTCPDialer(make(eventQueue, 1).poster(), time.Second, nil)

	tests := []struct {
		name string
		host string
		port int
	}{
		{"empty host", "", 80},
		{"zero port", "example.com", 0},
		{"port too large", "example.com", 70000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock, err := d.NewSocket(Handlers{})
			require.NoError(t, err)
			assert.False(t, sock.Connect(tt.host, tt.port))
			sock.Close(true)
		})
	}
}

func TestTCPSocket_WriteState(t *testing.T) {
	d := NewTCPDialer(make(eventQueue, 1).poster(), time.Second, nil)
	sock, err := d.NewSocket(Handlers{})
	require.NoError(t, err)

	assert.ErrorIs(t, sock.Write([]byte("x")), ErrNotConnected)
	sock.Close(true)
	sock.Close(true)
	assert.ErrorIs(t, sock.Write([]byte("x")), ErrClosed)
}

func TestTCPSocket_NoEventsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	lis, port := listen(t)
	defer lis.Close()
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("late data"))
		conn.Close()
	}()

	events := make(eventQueue, 16)
	d := NewTCPDialer(events.poster(), time.Second, nil)

	fired := 0
	var sock Socket
	sock, err := d.NewSocket(Handlers{
		OnConnect:    func() { fired++; sock.Close(true) },
		OnData:       func([]byte) { fired++ },
		OnDisconnect: func() { fired++ },
		OnError:      func(error) { fired++ },
	})
	require.NoError(t, err)
	require.True(t, sock.Connect("127.0.0.1", port))

	events.drainUntil(t, func() bool { return fired > 0 })

	// Anything already queued must be swallowed now that the socket is closed.
	deadline := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case fn := <-events:
			fn()
		case <-deadline:
			done = true
		}
	}
	assert.Equal(t, 1, fired)
}

func TestNewSocket_RequiresPoster(t *testing.T) {
	d := &TCPDialer{}
	_, err := d.NewSocket(Handlers{})
	assert.ErrorIs(t, err, ErrNoPoster)
}

func TestLinkFunc(t *testing.T) {
	up := true
	link := LinkFunc(func() bool { return up })
	assert.True(t, link.IsConnected())
	up = false
	assert.False(t, link.IsConnected())
	assert.True(t, AlwaysUp.IsConnected())
}
