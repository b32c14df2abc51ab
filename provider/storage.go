package provider

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotExist is returned when opening a file for reading that is not there.
	ErrNotExist = errors.New("file does not exist")

	// ErrWrongMode is returned when reading a write handle or writing a read handle.
	ErrWrongMode = errors.New("operation not permitted by open mode")
)

// Mode selects how a file is opened.
type Mode int

const (
	// ModeRead opens an existing file for sequential reads.
	ModeRead Mode = iota
	// ModeWrite creates or truncates a file for sequential writes.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// File is an open handle on a stored file.
type File interface {
	io.Reader
	io.Writer

	// Size returns the file size in bytes. For ModeWrite handles it is the
	// number of bytes written through the handle so far.
	Size() int64

	Close() error
}

// Storage is the block storage the engine reads uploads from and writes
// downloads to. A typical Storage is the local filesystem or an S3 prefix.
type Storage interface {
	// Exists reports whether path names a regular file.
	Exists(ctx context.Context, path string) bool

	// Open opens path in the given mode.
	Open(ctx context.Context, path string, mode Mode) (File, error)
}

// AsyncCloser is implemented by files whose Close waits on remote work, such
// as an upload that only completes once the writer is closed. CloseAsync
// starts the close and returns at once; done receives the result, possibly
// on another goroutine. It replaces Close, never follows it.
type AsyncCloser interface {
	CloseAsync(done func(error))
}
