package engine

import (
	"github.com/franksops/trickle/wire"
)

// handleResponse scans one inbound event for a JSON object. Events are not
// reassembled: an object split across two events is never reported.
func (e *Engine) handleResponse(id uint64, p []byte) {
	text, ok := wire.ExtractJSON(p)
	if !ok {
		e.logger.Trace("no json object in event", "id", id, "bytes", len(p))
		return
	}
	e.stats.LastResult = text

	doc, err := wire.Parse(text, e.cfg.DocumentBudget)
	if err != nil {
		e.logger.Warn("failed to parse response", "id", id, "error", err)
	}

	if e.onText != nil {
		e.onText(id, text)
	}
	if err == nil && e.onJSON != nil {
		e.onJSON(id, doc)
	}
}
