package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultDialTimeout bounds how long a connect attempt may take.
	DefaultDialTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single Write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultReadBufferSize is the largest chunk delivered by one OnData.
	DefaultReadBufferSize = 1024
)

// ensure interface is implemented
var _ Dialer = (*TCPDialer)(nil)

// TCPDialer creates plain TCP sockets. Connection setup and reads run on
// per-socket goroutines; every event is handed to Poster so handlers run on
// the poster's goroutine.
type TCPDialer struct {
	Poster         Poster
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadBufferSize int
	Logger         hclog.Logger
}

// NewTCPDialer creates a TCPDialer delivering events through poster.
func NewTCPDialer(poster Poster, dialTimeout time.Duration, logger hclog.Logger) *TCPDialer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &TCPDialer{
		Poster:      poster,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("tcp"),
	}
}

// NewSocket implements Dialer.
func (d *TCPDialer) NewSocket(h Handlers) (Socket, error) {
	if d.Poster == nil {
		return nil, ErrNoPoster
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &tcpSocket{
		dialer:   d,
		handlers: h,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (d *TCPDialer) dialTimeout() time.Duration {
	if d.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return d.DialTimeout
}

func (d *TCPDialer) writeTimeout() time.Duration {
	if d.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return d.WriteTimeout
}

func (d *TCPDialer) readBufferSize() int {
	if d.ReadBufferSize <= 0 {
		return DefaultReadBufferSize
	}
	return d.ReadBufferSize
}

func (d *TCPDialer) logger() hclog.Logger {
	if d.Logger == nil {
		return hclog.NewNullLogger()
	}
	return d.Logger
}

type socketState int

const (
	socketIdle socketState = iota
	socketConnecting
	socketOpen
	socketClosed
)

type tcpSocket struct {
	dialer   *TCPDialer
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state socketState
	conn  net.Conn
}

func (s *tcpSocket) Connect(host string, port int) bool {
	if host == "" || port <= 0 || port > 65535 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != socketIdle {
		return false
	}
	s.state = socketConnecting

	go s.run(net.JoinHostPort(host, strconv.Itoa(port)))
	return true
}

func (s *tcpSocket) run(addr string) {
	dialer := net.Dialer{Timeout: s.dialer.dialTimeout()}
	conn, err := dialer.DialContext(s.ctx, "tcp", addr)
	if err != nil {
		s.post(func() {
			if s.handlers.OnError != nil {
				s.handlers.OnError(fmt.Errorf("dial %s: %w", addr, err))
			}
		})
		return
	}

	s.mu.Lock()
	if s.state == socketClosed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = socketOpen
	s.mu.Unlock()

	s.dialer.logger().Debug("connected", "remote", addr)
	s.post(func() {
		if s.handlers.OnConnect != nil {
			s.handlers.OnConnect()
		}
	})

	buf := make([]byte, s.dialer.readBufferSize())
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p := append([]byte(nil), buf[:n]...)
			s.post(func() {
				if s.handlers.OnData != nil {
					s.handlers.OnData(p)
				}
			})
		}
		if err == nil {
			continue
		}

		switch {
		case s.isClosed():
		case errors.Is(err, io.EOF):
			s.post(func() {
				if s.handlers.OnDisconnect != nil {
					s.handlers.OnDisconnect()
				}
			})
		default:
			s.post(func() {
				if s.handlers.OnError != nil {
					s.handlers.OnError(fmt.Errorf("read %s: %w", addr, err))
				}
			})
		}
		return
	}
}

// post delivers fn through the poster unless the socket has been closed by
// the time it runs.
func (s *tcpSocket) post(fn func()) {
	delivered := s.dialer.Poster.Post(func() {
		if s.isClosed() {
			return
		}
		fn()
	})
	if !delivered {
		s.dialer.logger().Debug("event dropped, poster stopped")
	}
}

func (s *tcpSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == socketClosed
}

func (s *tcpSocket) Write(p []byte) error {
	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()

	switch state {
	case socketClosed:
		return ErrClosed
	case socketOpen:
	default:
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(s.dialer.writeTimeout())); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *tcpSocket) Close(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == socketClosed {
		return
	}
	s.state = socketClosed
	s.cancel()

	if s.conn == nil {
		return
	}
	if tcp, ok := s.conn.(*net.TCPConn); ok && force {
		// Drop unsent data and reset instead of lingering in FIN_WAIT.
		_ = tcp.SetLinger(0)
	}
	_ = s.conn.Close()
}
