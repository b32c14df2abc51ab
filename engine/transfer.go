package engine

import (
	"fmt"
	"time"

	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
)

type transferState int

const (
	stateIdle transferState = iota
	stateConnecting
	stateSendingHeaders
	stateStreamingBody
	stateAwaitingResponse
	stateClosing
	stateClosed
)

func (s transferState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateSendingHeaders:
		return "sending-headers"
	case stateStreamingBody:
		return "streaming-body"
	case stateAwaitingResponse:
		return "awaiting-response"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transfer is the per-dispatch context both state machines advance. The
// engine owns the socket and the file; finish releases both exactly once.
type transfer struct {
	req       TransferRequest
	kind      Kind
	key       string
	state     transferState
	startedAt time.Time

	socket transport.Socket
	file   provider.File

	// reader is set for uploads, writer for downloads.
	reader *ChecksumReader
	writer *ChecksumWriter

	bytes int64

	// endState and err are fixed by finish; complete records them.
	endState transferState
	err      error
}

func (t *transfer) checksum() uint64 {
	switch {
	case t.reader != nil:
		return t.reader.Checksum()
	case t.writer != nil:
		return t.writer.Checksum()
	}
	return 0
}

func (e *Engine) start(req TransferRequest, kind Kind) {
	t := &transfer{
		req:       req,
		kind:      kind,
		state:     stateIdle,
		startedAt: e.now(),
	}

	if e.tracker != nil {
		key, err := e.tracker.InitTransfer(req, kind)
		if err != nil {
			e.logger.Warn("journal init failed", "id", req.ID, "error", err)
		} else {
			t.key = key
		}
	}

	e.logger.Info("dispatching", "id", req.ID, "kind", kind, "host", req.Host, "port", req.Port, "path", req.ResourcePath, "local", req.LocalPath)

	switch kind {
	case KindUpload:
		e.startUpload(t)
	case KindDownload:
		e.startDownload(t)
	default:
		e.abandon(t, fmt.Errorf("unknown transfer kind %d", kind))
	}
}

// connect makes t the active transfer and starts its connection. Every
// handler is dropped once t is closed.
func (e *Engine) connect(t *transfer, h transport.Handlers) {
	e.active = t
	if t.key != "" {
		if err := e.tracker.MarkInProgress(t.key); err != nil {
			e.logger.Warn("journal update failed", "id", t.req.ID, "error", err)
		}
	}

	sock, err := e.dialer.NewSocket(e.guard(t, h))
	if err != nil {
		e.finish(t, fmt.Errorf("%w: %w", ErrConnectFailed, err))
		return
	}
	t.socket = sock
	t.state = stateConnecting

	if !sock.Connect(t.req.Host, t.req.Port) {
		e.finish(t, fmt.Errorf("%w: cannot start connect to %s:%d", ErrConnectFailed, t.req.Host, t.req.Port))
	}
}

// guard wraps h so that no handler runs for a closed transfer, and fills in
// the error and disconnect handling shared by both state machines.
func (e *Engine) guard(t *transfer, h transport.Handlers) transport.Handlers {
	open := func() bool { return t.state < stateClosing && e.active == t }

	return transport.Handlers{
		OnConnect: func() {
			if open() && h.OnConnect != nil {
				h.OnConnect()
			}
		},
		OnData: func(p []byte) {
			if open() && h.OnData != nil {
				h.OnData(p)
			}
		},
		OnError: func(err error) {
			if !open() {
				return
			}
			if t.state == stateConnecting {
				e.finish(t, fmt.Errorf("%w: %w", ErrConnectFailed, err))
				return
			}
			e.finish(t, fmt.Errorf("socket error while %s: %w", t.state, err))
		},
		OnDisconnect: func() {
			if !open() {
				return
			}
			if t.state == stateAwaitingResponse {
				e.finish(t, nil)
				return
			}
			e.finish(t, fmt.Errorf("%w while %s", ErrDisconnected, t.state))
		},
	}
}

// finish is the single terminal transition of both state machines. A nil
// err closes the transfer as a success. Calling it again is a no-op.
//
// A file that closes asynchronously keeps the transfer active, in the
// closing state, until its result is posted back. Nothing else is dispatched
// meanwhile.
func (e *Engine) finish(t *transfer, err error) {
	if t.state >= stateClosing {
		return
	}
	t.endState = t.state
	t.err = err
	t.state = stateClosing

	if t.socket != nil {
		t.socket.Close(err != nil)
		t.socket = nil
	}

	if ac, ok := t.file.(provider.AsyncCloser); ok && e.poster != nil {
		t.file = nil
		ac.CloseAsync(func(cerr error) {
			if !e.poster.Post(func() { e.fileClosed(t, cerr) }) {
				e.logger.Warn("close result dropped, engine loop stopped", "id", t.req.ID)
			}
		})
		return
	}
	e.fileClosed(t, e.closeFile(t))
}

// fileClosed folds the result of closing the local file into the outcome.
func (e *Engine) fileClosed(t *transfer, cerr error) {
	if cerr != nil && t.err == nil {
		t.err = fmt.Errorf("close %s: %w", t.req.LocalPath, cerr)
	}
	e.complete(t, t.err)
}

// complete records the outcome of t. It runs once; later calls are no-ops.
func (e *Engine) complete(t *transfer, err error) {
	if t.state == stateClosed {
		return
	}
	t.state = stateClosed
	if e.active == t {
		e.active = nil
	}

	elapsed := e.now().Sub(t.startedAt)
	sum := t.checksum()
	if err != nil {
		e.stats.Failed++
		e.logger.Warn("transfer failed", "id", t.req.ID, "kind", t.kind, "state", t.endState, "bytes", t.bytes, "elapsed", elapsed, "error", err)
		if t.key != "" {
			if jerr := e.tracker.MarkFailed(t.key, t.bytes, sum, err); jerr != nil {
				e.logger.Warn("journal update failed", "id", t.req.ID, "error", jerr)
			}
		}
		return
	}

	e.stats.Completed++
	e.logger.Info("transfer complete", "id", t.req.ID, "kind", t.kind, "bytes", t.bytes, "checksum", fmt.Sprintf("%016x", sum), "elapsed", elapsed)
	if t.key != "" {
		if jerr := e.tracker.MarkCompleted(t.key, t.bytes, sum); jerr != nil {
			e.logger.Warn("journal update failed", "id", t.req.ID, "error", jerr)
		}
	}
}

// abandon ends a transfer that failed its preconditions. No socket exists
// yet and no callback fires.
func (e *Engine) abandon(t *transfer, err error) {
	t.state = stateClosed
	if cerr := e.closeFile(t); cerr != nil {
		e.logger.Debug("failed to close local file", "id", t.req.ID, "error", cerr)
	}
	e.stats.Abandoned++
	e.logger.Warn("transfer abandoned", "id", t.req.ID, "kind", t.kind, "local", t.req.LocalPath, "error", err)
	if t.key != "" {
		if jerr := e.tracker.MarkFailed(t.key, 0, 0, err); jerr != nil {
			e.logger.Warn("journal update failed", "id", t.req.ID, "error", jerr)
		}
	}
}

// closeFile closes the local file the first time it is called for t. Later
// calls return nil.
func (e *Engine) closeFile(t *transfer) error {
	if t.file == nil {
		return nil
	}
	f := t.file
	t.file = nil
	return f.Close()
}
