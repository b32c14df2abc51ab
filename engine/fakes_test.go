package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
	"github.com/franksops/trickle/wire"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// fakeSocket records what the engine does to it. Tests drive its events by
// calling the handlers directly, as the loop would.
type fakeSocket struct {
	h        transport.Handlers
	refuse   bool
	writeErr error
	host     string
	port     int
	connects int
	writes   [][]byte
	closes   int
	forced   bool
}

func (s *fakeSocket) Connect(host string, port int) bool {
	s.host, s.port = host, port
	s.connects++
	return !s.refuse
}

func (s *fakeSocket) Write(p []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return nil
}

func (s *fakeSocket) Close(force bool) {
	s.closes++
	s.forced = force
}

func (s *fakeSocket) connect() { s.h.OnConnect() }
func (s *fakeSocket) data(p string) { s.h.OnData([]byte(p)) }
func (s *fakeSocket) disconnect() { s.h.OnDisconnect() }
func (s *fakeSocket) fail(err error) { s.h.OnError(err) }
func (s *fakeSocket) body() []byte { return joinWrites(s.writes[1:]) }
func (s *fakeSocket) header() string { return string(s.writes[0]) }

func joinWrites(ws [][]byte) []byte {
	var out []byte
	for _, w := range ws {
		out = append(out, w...)
	}
	return out
}

type fakeDialer struct {
	sockets  []*fakeSocket
	refuse   bool
	writeErr error
	err      error
}

func (d *fakeDialer) NewSocket(h transport.Handlers) (transport.Socket, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSocket{h: h, refuse: d.refuse, writeErr: d.writeErr}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) last(t *testing.T) *fakeSocket {
	t.Helper()
	require.NotEmpty(t, d.sockets, "no socket was created")
	return d.sockets[len(d.sockets)-1]
}

// countingStorage counts Close calls so tests can check that every file is
// closed exactly once.
type countingStorage struct {
	provider.Storage
	opens    int
	closes   int
	closeErr error
}

func (c *countingStorage) Open(ctx context.Context, path string, mode provider.Mode) (provider.File, error) {
	f, err := c.Storage.Open(ctx, path, mode)
	if err != nil {
		return nil, err
	}
	c.opens++
	return &countingFile{File: f, storage: c}, nil
}

type countingFile struct {
	provider.File
	storage *countingStorage
}

func (f *countingFile) Close() error {
	f.storage.closes++
	if err := f.File.Close(); err != nil {
		return err
	}
	return f.storage.closeErr
}

// failingWrites hands out write handles that refuse every write.
type failingWrites struct {
	provider.Storage
}

func (s failingWrites) Open(ctx context.Context, path string, mode provider.Mode) (provider.File, error) {
	f, err := s.Storage.Open(ctx, path, mode)
	if err != nil || mode != provider.ModeWrite {
		return f, err
	}
	return failingWriteFile{File: f}, nil
}

type failingWriteFile struct {
	provider.File
}

func (failingWriteFile) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

// slowCloses hands out write handles whose close finishes only when the
// test calls the stored callback, like an S3 upload.
type slowCloses struct {
	provider.Storage
	pending []func(error)
}

func (s *slowCloses) Open(ctx context.Context, path string, mode provider.Mode) (provider.File, error) {
	f, err := s.Storage.Open(ctx, path, mode)
	if err != nil || mode != provider.ModeWrite {
		return f, err
	}
	return &slowCloseFile{File: f, storage: s}, nil
}

type slowCloseFile struct {
	provider.File
	storage *slowCloses
}

func (f *slowCloseFile) CloseAsync(done func(error)) {
	f.storage.pending = append(f.storage.pending, func(err error) {
		if cerr := f.File.Close(); err == nil {
			err = cerr
		}
		done(err)
	})
}

// posted collects what the engine posts back so the test can run it as the
// loop would.
type posted []func()

func (p *posted) poster() transport.Poster {
	return transport.PosterFunc(func(fn func()) bool {
		*p = append(*p, fn)
		return true
	})
}

func (p *posted) run() {
	fns := *p
	*p = nil
	for _, fn := range fns {
		fn()
	}
}

type result struct {
	id   uint64
	text string
}

type harness struct {
	eng     *Engine
	dialer  *fakeDialer
	storage *countingStorage
	fs      billy.Filesystem
	up      bool
	now     time.Time

	texts []result
	docs  []wire.Document
	ids   []uint64
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	mem := provider.NewMemoryStorage()
	h := &harness{
		dialer:  &fakeDialer{},
		storage: &countingStorage{Storage: mem},
		fs:      mem.Filesystem(),
		up:      true,
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	link := transport.LinkFunc(func() bool { return h.up })
	opts = append([]Option{
		WithClock(func() time.Time { return h.now }),
		WithMemoryProbe(MemoryFunc(func() uint64 { return math.MaxUint64 })),
	}, opts...)
	h.eng = New(context.Background(), cfg, link, h.dialer, h.storage, opts...)

	h.eng.OnTextResult(func(id uint64, text string) {
		h.texts = append(h.texts, result{id: id, text: text})
	})
	h.eng.OnJSONResult(func(id uint64, doc wire.Document) {
		h.ids = append(h.ids, id)
		h.docs = append(h.docs, doc)
	})
	return h
}

// tick advances the clock past the dispatch interval and runs the dispatcher.
func (h *harness) tick() {
	h.now = h.now.Add(DefaultDispatchInterval)
	h.eng.Tick(h.now)
}

func (h *harness) writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, util.WriteFile(h.fs, path, data, 0644))
}

func (h *harness) readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := util.ReadFile(h.fs, path)
	require.NoError(t, err)
	return data
}
