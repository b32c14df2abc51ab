// Package transport provides the asynchronous socket and link status
// collaborators the transfer engine is driven by.
package transport

import "errors"

var (
	// ErrNotConnected is returned by Write before the connection is open.
	ErrNotConnected = errors.New("socket not connected")

	// ErrClosed is returned by Write after Close.
	ErrClosed = errors.New("socket closed")

	// ErrNoPoster is returned when a dialer has nowhere to deliver events.
	ErrNoPoster = errors.New("dialer has no event poster")
)

// Handlers receive the events of one Socket. Any of them may be nil.
type Handlers struct {
	OnConnect    func()
	OnData       func(p []byte)
	OnError      func(err error)
	OnDisconnect func()
}

// Socket is a single non-blocking TCP connection. Connect returns false when
// the attempt could not even be started; everything after that is reported
// through the Handlers the socket was created with.
type Socket interface {
	Connect(host string, port int) bool
	Write(p []byte) error
	// Close releases the connection. No handler runs once Close has
	// returned. Calling it more than once is harmless.
	Close(force bool)
}

// Dialer creates sockets bound to a set of handlers.
type Dialer interface {
	NewSocket(h Handlers) (Socket, error)
}

// Poster runs fn on the goroutine that owns the engine. It reports false when
// fn was dropped because that goroutine is gone.
type Poster interface {
	Post(fn func()) bool
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(fn func()) bool

// Post implements Poster.
func (f PosterFunc) Post(fn func()) bool { return f(fn) }
