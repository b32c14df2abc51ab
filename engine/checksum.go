package engine

import (
	"hash"
	"hash/crc64"
	"io"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// crcCounter accumulates a CRC64-ISO checksum and a byte count.
type crcCounter struct {
	hash hash.Hash64
	n    int64
}

func newCRCCounter() crcCounter {
	return crcCounter{hash: crc64.New(crcTable)}
}

func (c *crcCounter) add(p []byte) {
	c.n += int64(len(p))
	c.hash.Write(p)
}

// ChecksumWriter wraps an io.Writer to compute a checksum while writing.
// Downloads are written through one so the journal can record what landed
// on disk.
type ChecksumWriter struct {
	w io.Writer
	crcCounter
}

// NewChecksumWriter creates a ChecksumWriter over w.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, crcCounter: newCRCCounter()}
}

// Write writes data to the underlying writer and updates the checksum with
// the bytes that were actually written.
func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.add(p[:n])
	}
	return n, err
}

// Checksum returns the current checksum value.
func (cw *ChecksumWriter) Checksum() uint64 { return cw.hash.Sum64() }

// BytesWritten returns the total number of bytes written.
func (cw *ChecksumWriter) BytesWritten() int64 { return cw.n }

// ChecksumReader wraps an io.Reader to compute a checksum while reading.
// Upload bodies are read through one.
type ChecksumReader struct {
	r io.Reader
	crcCounter
}

// NewChecksumReader creates a ChecksumReader over r.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{r: r, crcCounter: newCRCCounter()}
}

// Read reads data from the underlying reader and updates the checksum.
func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.add(p[:n])
	}
	return n, err
}

// Checksum returns the current checksum value.
func (cr *ChecksumReader) Checksum() uint64 { return cr.hash.Sum64() }

// BytesRead returns the total number of bytes read.
func (cr *ChecksumReader) BytesRead() int64 { return cr.n }

// Checksum64 returns the CRC64-ISO checksum of p, matching what the reader
// and writer report for the same bytes.
func Checksum64(p []byte) uint64 {
	return crc64.Checksum(p, crcTable)
}
