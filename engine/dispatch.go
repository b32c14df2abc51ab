package engine

import (
	"time"
)

// Tick runs the dispatcher. It starts at most one transfer per
// DispatchInterval and none while a transfer is still open. It is meant to be
// passed to Loop.Start.
func (e *Engine) Tick(now time.Time) {
	if e.closed || e.active != nil {
		return
	}
	if !e.link.IsConnected() || e.queue.IsEmpty() {
		return
	}
	if !e.lastDispatch.IsZero() && now.Sub(e.lastDispatch) < e.cfg.DispatchInterval {
		return
	}
	e.lastDispatch = now

	req, ok := e.queue.PopOldest()
	if !ok {
		return
	}
	req.DispatchedAt = now

	if !req.complete() {
		e.stats.Dropped++
		e.logger.Warn("dropping incomplete request", "id", req.ID, "host", req.Host, "path", req.ResourcePath, "local", req.LocalPath)
		return
	}

	kind := e.route(req)
	if kind != req.Kind {
		e.logger.Debug("request rerouted", "id", req.ID, "enqueued_as", req.Kind, "running_as", kind)
	}
	e.start(req, kind)
}

func (e *Engine) route(req TransferRequest) Kind {
	if e.cfg.Routing == RouteByFileExistence {
		if e.storage.Exists(e.ctx, req.LocalPath) {
			return KindUpload
		}
		return KindDownload
	}
	return req.Kind
}
