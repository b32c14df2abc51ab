package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_Exists(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalStorage(tempBase)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(tempBase, "present.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tempBase, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	if !p.Exists(ctx, "present.txt") {
		t.Errorf("expected present.txt to exist")
	}
	if p.Exists(ctx, "missing.txt") {
		t.Errorf("expected missing.txt not to exist")
	}
	if p.Exists(ctx, "subdir") {
		t.Errorf("expected a directory not to count as an existing file")
	}
}

func TestLocalStorage_OpenRead(t *testing.T) {
	tempBase := t.TempDir()
	testContent := []byte("hello read")
	if err := os.WriteFile(filepath.Join(tempBase, "read.txt"), testContent, 0644); err != nil {
		t.Fatal(err)
	}

	p := NewLocalStorage(tempBase)
	f, err := p.Open(context.Background(), "read.txt", ModeRead)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	if f.Size() != int64(len(testContent)) {
		t.Errorf("expected size %d, got %d", len(testContent), f.Size())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(data, testContent) {
		t.Errorf("expected %q, got %q", testContent, data)
	}

	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrWrongMode) {
		t.Errorf("expected ErrWrongMode writing a read handle, got %v", err)
	}
}

func TestLocalStorage_OpenReadMissing(t *testing.T) {
	p := NewLocalStorage(t.TempDir())
	_, err := p.Open(context.Background(), "nope.txt", ModeRead)
	if !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLocalStorage_OpenWriteTruncates(t *testing.T) {
	tempBase := t.TempDir()
	target := filepath.Join(tempBase, "out", "nested", "write.txt")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("previous longer content"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewLocalStorage(tempBase)
	f, err := p.Open(context.Background(), "out/nested/write.txt", ModeWrite)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for _, part := range []string{"new", " ", "data"} {
		if _, err := f.Write([]byte(part)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if f.Size() != 8 {
		t.Errorf("expected 8 bytes written, got %d", f.Size())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new data" {
		t.Errorf("expected %q, got %q", "new data", got)
	}
}

func TestLocalStorage_WriteCreatesDirectories(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalStorage(tempBase)

	f, err := p.Open(context.Background(), "a/b/c/deep.txt", ModeWrite)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Write([]byte("deep file content")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(tempBase, "a", "b", "c", "deep.txt")); err != nil {
		t.Errorf("expected nested file to exist: %v", err)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	p := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Open(ctx, "x.txt", ModeWrite); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p.Exists(ctx, "x.txt") {
		t.Errorf("expected Exists to report false on a cancelled context")
	}
}

// TestMemoryToLocalTransfer copies a file between two storages through the
// Storage interface only, the way the engine moves bytes.
func TestMemoryToLocalTransfer(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStorage()
	dst := NewLocalStorage(t.TempDir())

	testContent := bytes.Repeat([]byte("trickle "), 200)

	w, err := src.Open(ctx, "/spool/report.bin", ModeWrite)
	if err != nil {
		t.Fatalf("Failed to open memory file: %v", err)
	}
	if _, err := w.Write(testContent); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if !src.Exists(ctx, "/spool/report.bin") {
		t.Fatalf("expected memory file to exist")
	}

	r, err := src.Open(ctx, "/spool/report.bin", ModeRead)
	if err != nil {
		t.Fatalf("Failed to open memory file for reading: %v", err)
	}
	defer r.Close()

	out, err := dst.Open(ctx, "report.bin", ModeWrite)
	if err != nil {
		t.Fatalf("Failed to open destination: %v", err)
	}

	buf := make([]byte, 512)
	if _, err := io.CopyBuffer(out, r, buf); err != nil {
		out.Close()
		t.Fatalf("Failed to copy: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	back, err := dst.Open(ctx, "report.bin", ModeRead)
	if err != nil {
		t.Fatal(err)
	}
	defer back.Close()

	data, err := io.ReadAll(back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, testContent) {
		t.Errorf("content mismatch after transfer")
	}
}

func TestMode_String(t *testing.T) {
	if ModeRead.String() != "read" || ModeWrite.String() != "write" || Mode(9).String() != "unknown" {
		t.Errorf("unexpected Mode strings")
	}
}
