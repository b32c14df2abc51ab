package engine

import (
	"fmt"
	"io"

	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
)

func (e *Engine) startDownload(t *transfer) {
	if err := e.checkMemory(); err != nil {
		e.abandon(t, err)
		return
	}

	f, err := e.storage.Open(e.ctx, t.req.LocalPath, provider.ModeWrite)
	if err != nil {
		e.abandon(t, fmt.Errorf("open %s for write: %w", t.req.LocalPath, err))
		return
	}
	t.file = f

	var w io.Writer = f
	if t.key != "" {
		w = e.tracker.NewTrackedWriter(f, t.key)
	}
	t.writer = NewChecksumWriter(w)

	e.connect(t, transport.Handlers{
		OnConnect: func() { e.downloadConnected(t) },
		OnData:    func(p []byte) { e.downloadData(t, p) },
	})
}

func (e *Engine) downloadConnected(t *transfer) {
	t.state = stateSendingHeaders

	header, err := e.serializer.BuildDownloadRequest(t.req.Target())
	if err != nil {
		e.finish(t, err)
		return
	}
	if err := t.socket.Write(header); err != nil {
		e.finish(t, fmt.Errorf("write headers: %w", err))
		return
	}
	t.state = stateAwaitingResponse
}

// downloadData appends every inbound event, status line and headers
// included, to the local file and then scans it for a JSON reply.
func (e *Engine) downloadData(t *transfer, p []byte) {
	n, err := t.writer.Write(p)
	t.bytes += int64(n)
	if err != nil {
		e.finish(t, fmt.Errorf("write %s: %w", t.req.LocalPath, err))
		return
	}
	e.handleResponse(t.req.ID, p)
}
