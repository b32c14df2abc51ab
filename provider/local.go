package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// ensure interface is implemented
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements Storage on top of a billy filesystem. In production
// that is the OS filesystem rooted at a base path; tests use an in-memory one.
type LocalStorage struct {
	fs billy.Filesystem
}

// NewLocalStorage creates a LocalStorage rooted at basePath. Paths handed to
// the storage are resolved inside basePath. An empty basePath means "/".
func NewLocalStorage(basePath string) *LocalStorage {
	if basePath == "" {
		basePath = "/"
	}
	return &LocalStorage{fs: osfs.New(basePath)}
}

// NewMemoryStorage creates a LocalStorage backed by an in-memory filesystem.
func NewMemoryStorage() *LocalStorage {
	return &LocalStorage{fs: memfs.New()}
}

// NewBillyStorage wraps an existing billy filesystem.
func NewBillyStorage(fs billy.Filesystem) *LocalStorage {
	return &LocalStorage{fs: fs}
}

// Filesystem returns the underlying billy filesystem.
func (p *LocalStorage) Filesystem() billy.Filesystem {
	return p.fs
}

func (p *LocalStorage) Exists(ctx context.Context, path string) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	info, err := p.fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (p *LocalStorage) Open(ctx context.Context, path string, mode Mode) (File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	switch mode {
	case ModeRead:
		info, err := p.fs.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("open %q: %w", path, ErrNotExist)
			}
			return nil, fmt.Errorf("stat %q: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("open %q: is a directory", path)
		}
		f, err := p.fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", path, err)
		}
		return &localFile{fs: p.fs, file: f, mode: mode, size: info.Size()}, nil

	case ModeWrite:
		// Create parent directories if they don't exist
		if dir := filepath.Dir(path); dir != "." && dir != "/" {
			if err := p.fs.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("mkdir %q: %w", dir, err)
			}
		}
		f, err := p.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", path, err)
		}
		return &localFile{fs: p.fs, file: f, mode: mode}, nil

	default:
		return nil, fmt.Errorf("open %q: unsupported mode %d", path, mode)
	}
}

type localFile struct {
	fs   billy.Filesystem
	file billy.File
	mode Mode
	size int64
}

func (l *localFile) Read(p []byte) (int, error) {
	if l.mode != ModeRead {
		return 0, ErrWrongMode
	}
	return l.file.Read(p)
}

func (l *localFile) Write(p []byte) (int, error) {
	if l.mode != ModeWrite {
		return 0, ErrWrongMode
	}
	n, err := l.file.Write(p)
	l.size += int64(n)
	return n, err
}

// Size re-stats read handles so a file that grew since Open reports its
// current length.
func (l *localFile) Size() int64 {
	if l.mode == ModeRead {
		if info, err := l.fs.Stat(l.file.Name()); err == nil {
			return info.Size()
		}
	}
	return l.size
}

func (l *localFile) Close() error {
	return l.file.Close()
}
