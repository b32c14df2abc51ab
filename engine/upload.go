package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
)

func (e *Engine) startUpload(t *transfer) {
	if err := e.checkMemory(); err != nil {
		e.abandon(t, err)
		return
	}
	if !e.storage.Exists(e.ctx, t.req.LocalPath) {
		e.abandon(t, fmt.Errorf("%w: %s", ErrLocalFileMissing, t.req.LocalPath))
		return
	}

	f, err := e.storage.Open(e.ctx, t.req.LocalPath, provider.ModeRead)
	if err != nil {
		e.abandon(t, fmt.Errorf("%w: %w", ErrLocalFileMissing, err))
		return
	}
	t.file = f
	t.reader = NewChecksumReader(f)

	e.connect(t, transport.Handlers{
		OnConnect: func() { e.uploadConnected(t) },
		OnData:    func(p []byte) { e.handleResponse(t.req.ID, p) },
	})
}

// uploadConnected sends the header block and then the whole body. The body
// goes out in ChunkSize pieces so at most one chunk is held in memory.
func (e *Engine) uploadConnected(t *transfer) {
	t.state = stateSendingHeaders

	header, err := e.serializer.BuildUploadRequest(t.req.Target(), t.file.Size())
	if err != nil {
		e.finish(t, err)
		return
	}
	if err := t.socket.Write(header); err != nil {
		e.finish(t, fmt.Errorf("write headers: %w", err))
		return
	}

	t.state = stateStreamingBody
	buf := e.buffers.Get()
	defer e.buffers.Put(buf)

	for {
		n, rerr := t.reader.Read(*buf)
		if n > 0 {
			if err := t.socket.Write((*buf)[:n]); err != nil {
				e.finish(t, fmt.Errorf("write body: %w", err))
				return
			}
			t.bytes += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			e.finish(t, fmt.Errorf("read %s: %w", t.req.LocalPath, rerr))
			return
		}
	}

	if err := e.closeFile(t); err != nil {
		e.logger.Debug("failed to close local file", "id", t.req.ID, "error", err)
	}
	t.state = stateAwaitingResponse
	e.logger.Debug("upload body sent", "id", t.req.ID, "bytes", t.bytes)
}
