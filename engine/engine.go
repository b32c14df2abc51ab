// Package engine drains a bounded queue of transfer requests one at a time,
// moving files between local storage and HTTP endpoints over a minimal
// HTTP/1.1 exchange.
//
// An Engine is not safe for concurrent use. Every method, socket event and
// tick must run on the same goroutine, normally a Loop's.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
	"github.com/franksops/trickle/wire"
	"github.com/hashicorp/go-hclog"
)

// DefaultDispatchInterval is the minimum time between two dispatches.
const DefaultDispatchInterval = 250 * time.Millisecond

var (
	// ErrLowMemory is returned when free memory is under the configured floor.
	ErrLowMemory = errors.New("free memory below floor")

	// ErrLocalFileMissing is returned when an upload's local file does not exist
	// or cannot be opened.
	ErrLocalFileMissing = errors.New("local file missing")

	// ErrConnectFailed is returned when a connection could not be established.
	ErrConnectFailed = errors.New("connect failed")

	// ErrDisconnected is returned when the peer hangs up before the request
	// was fully sent.
	ErrDisconnected = errors.New("disconnected mid-transfer")

	// ErrEngineClosed is the error an active transfer is closed with when the
	// engine shuts down.
	ErrEngineClosed = errors.New("engine closed")
)

// Routing decides which state machine a dispatched request runs.
type Routing int

const (
	// RouteByKind runs the state machine the request was enqueued for.
	RouteByKind Routing = iota
	// RouteByFileExistence uploads when the local file exists and downloads
	// otherwise, whatever the request was enqueued as.
	RouteByFileExistence
)

func (r Routing) String() string {
	switch r {
	case RouteByKind:
		return "kind"
	case RouteByFileExistence:
		return "file-exists"
	default:
		return "unknown"
	}
}

// ParseRouting parses "kind" or "file-exists".
func ParseRouting(s string) (Routing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kind":
		return RouteByKind, nil
	case "file-exists":
		return RouteByFileExistence, nil
	default:
		return 0, fmt.Errorf("unknown routing %q", s)
	}
}

// Config tunes an Engine. Zero fields take their defaults.
type Config struct {
	QueueCapacity    int
	DispatchInterval time.Duration
	MemoryFloor      uint64
	ChunkSize        int
	RequestBudget    int
	DocumentBudget   int
	UserAgent        string
	Routing          Routing
	Logger           hclog.Logger
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:    DefaultQueueCapacity,
		DispatchInterval: DefaultDispatchInterval,
		MemoryFloor:      DefaultMemoryFloor,
		ChunkSize:        DefaultChunkSize,
		RequestBudget:    wire.DefaultRequestBudget,
		DocumentBudget:   wire.DefaultDocumentBudget,
		UserAgent:        wire.DefaultUserAgent,
		Routing:          RouteByKind,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = d.DispatchInterval
	}
	if c.MemoryFloor == 0 {
		c.MemoryFloor = d.MemoryFloor
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.RequestBudget <= 0 {
		c.RequestBudget = d.RequestBudget
	}
	if c.DocumentBudget <= 0 {
		c.DocumentBudget = d.DocumentBudget
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithMemoryProbe replaces the runtime memory probe.
func WithMemoryProbe(p MemoryProbe) Option {
	return func(e *Engine) {
		e.memory = p
	}
}

// WithTracker journals every dispatched transfer through t.
func WithTracker(t *Tracker) Option {
	return func(e *Engine) {
		e.tracker = t
	}
}

// WithPoster lets files that close asynchronously report back on the
// engine's goroutine. Without a poster every file is closed synchronously.
func WithPoster(p transport.Poster) Option {
	return func(e *Engine) {
		e.poster = p
	}
}

// WithClock replaces time.Now for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// ActiveTransfer describes the transfer currently in flight.
type ActiveTransfer struct {
	ID           uint64
	Kind         Kind
	State        string
	ResourcePath string
	LocalPath    string
	Bytes        int64
	StartedAt    time.Time
}

// Stats is a point-in-time view of an Engine.
type Stats struct {
	Queued   int
	Capacity int
	Active   *ActiveTransfer

	Completed int
	Failed    int
	Abandoned int
	// Dropped counts incomplete requests discarded at dispatch.
	Dropped int
	// Rejected counts enqueues refused because the link was down or the
	// request was already queued.
	Rejected int
	Evicted  int

	LastID     uint64
	LastResult string
}

// Engine owns the transfer queue, the dispatcher and the in-flight transfer.
type Engine struct {
	ctx     context.Context
	cfg     Config
	logger  hclog.Logger
	link    transport.LinkStatus
	dialer  transport.Dialer
	storage provider.Storage

	memory  MemoryProbe
	tracker *Tracker
	poster  transport.Poster
	now     func() time.Time

	queue      *TransferQueue
	serializer wire.Serializer
	buffers    *BufferPool

	// lastID is pre-incremented, so 0 never names a request.
	lastID       uint64
	lastDispatch time.Time
	active       *transfer
	closed       bool

	onText func(id uint64, text string)
	onJSON func(id uint64, doc wire.Document)

	stats Stats
}

// New creates an Engine. ctx is passed to storage operations.
func New(ctx context.Context, cfg Config, link transport.LinkStatus, dialer transport.Dialer, storage provider.Storage, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		ctx:        ctx,
		cfg:        cfg,
		logger:     cfg.Logger,
		link:       link,
		dialer:     dialer,
		storage:    storage,
		memory:     RuntimeMemory{},
		now:        time.Now,
		queue:      NewTransferQueue(cfg.QueueCapacity),
		serializer: wire.NewSerializer(cfg.RequestBudget, cfg.UserAgent),
		buffers:    NewBufferPool(cfg.ChunkSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnTextResult registers the callback receiving every extracted JSON
// fragment as text, parsed or not.
func (e *Engine) OnTextResult(fn func(id uint64, text string)) {
	e.onText = fn
}

// OnJSONResult registers the callback receiving every fragment that parsed.
func (e *Engine) OnJSONResult(fn func(id uint64, doc wire.Document)) {
	e.onJSON = fn
}

// EnqueueUpload queues an upload of localPath to path on host:port. It
// returns the request id, or 0 when the link is down or an identical request
// is already queued.
func (e *Engine) EnqueueUpload(credential, host string, port int, path, localPath string) uint64 {
	return e.enqueue(KindUpload, credential, host, port, path, localPath)
}

// EnqueueDownload queues a download of path on host:port into localPath. It
// returns the request id, or 0 when the link is down or an identical request
// is already queued.
func (e *Engine) EnqueueDownload(credential, host string, port int, path, localPath string) uint64 {
	return e.enqueue(KindDownload, credential, host, port, path, localPath)
}

func (e *Engine) enqueue(kind Kind, credential, host string, port int, path, localPath string) uint64 {
	if e.closed {
		return 0
	}
	if !e.link.IsConnected() {
		e.stats.Rejected++
		e.logger.Warn("link down, request rejected", "kind", kind, "host", host, "path", path)
		return 0
	}

	e.lastID++
	req := NewTransferRequest(e.lastID, kind, credential, host, port, path, localPath, e.now())

	oldest, ok := e.queue.Oldest()
	full := ok && e.queue.Len() >= e.queue.Cap()

	if !e.queue.Enqueue(req) {
		e.stats.Rejected++
		e.logger.Debug("duplicate request rejected", "id", req.ID, "kind", kind, "path", req.ResourcePath)
		return 0
	}
	if full {
		e.stats.Evicted++
		e.logger.Warn("queue full, evicted oldest request", "evicted", oldest.ID, "id", req.ID)
	}

	e.logger.Debug("request queued", "id", req.ID, "kind", kind, "host", req.Host, "path", req.ResourcePath, "queued", e.queue.Len())
	return req.ID
}

// Busy reports whether a transfer is in flight.
func (e *Engine) Busy() bool {
	return e.active != nil
}

// Idle reports whether there is nothing queued and nothing in flight.
func (e *Engine) Idle() bool {
	return e.active == nil && e.queue.IsEmpty()
}

// Pending returns the queued requests, oldest first.
func (e *Engine) Pending() []TransferRequest {
	return e.queue.Snapshot()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Queued = e.queue.Len()
	s.Capacity = e.queue.Cap()
	s.LastID = e.lastID
	if t := e.active; t != nil {
		s.Active = &ActiveTransfer{
			ID:           t.req.ID,
			Kind:         t.kind,
			State:        t.state.String(),
			ResourcePath: t.req.ResourcePath,
			LocalPath:    t.req.LocalPath,
			Bytes:        t.bytes,
			StartedAt:    t.startedAt,
		}
	}
	return s
}

// Close tears down the in-flight transfer and discards the queue. Enqueues
// and ticks after Close are no-ops.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	if t := e.active; t != nil {
		if t.state == stateClosing {
			// The pending close result is dropped when it arrives.
			e.complete(t, ErrEngineClosed)
		} else {
			e.finish(t, ErrEngineClosed)
		}
	}
	if n := e.queue.Len(); n > 0 {
		e.logger.Info("discarding queued requests", "count", n)
	}
	e.queue = NewTransferQueue(e.cfg.QueueCapacity)
}

func (e *Engine) checkMemory() error {
	free := e.memory.FreeBytes()
	if free < e.cfg.MemoryFloor {
		return fmt.Errorf("%w: %d < %d", ErrLowMemory, free, e.cfg.MemoryFloor)
	}
	return nil
}
