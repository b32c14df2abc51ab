package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/franksops/trickle/store"
	"github.com/google/uuid"
)

// CheckpointConfig defines the criteria for when to save a download's progress
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been received
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing.
// Transfers here are small, so checkpoints are frequent.
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 64 * 1024,
	TimeInterval:  time.Second,
}

// Tracker journals dispatched transfers to a store. Every process run gets
// its own run id, so request ids restarting at 1 never collide with an
// earlier run's records.
type Tracker struct {
	store  store.Store
	config CheckpointConfig
	runID  string
	now    func() time.Time
}

// NewTracker creates a new Tracker
func NewTracker(s store.Store, config CheckpointConfig) *Tracker {
	return &Tracker{
		store:  s,
		config: config,
		runID:  uuid.NewString(),
		now:    time.Now,
	}
}

// RunID identifies the process run the tracker journals for.
func (t *Tracker) RunID() string {
	return t.runID
}

// Key returns the journal key of request id in this run.
func (t *Tracker) Key(id uint64) string {
	return fmt.Sprintf("%s/%020d", t.runID, id)
}

// InitTransfer records a freshly dispatched request as pending and returns
// its journal key.
func (t *Tracker) InitTransfer(req TransferRequest, kind Kind) (string, error) {
	key := t.Key(req.ID)
	record := &store.TransferRecord{
		Key:          key,
		RequestID:    req.ID,
		Kind:         kind.String(),
		Host:         req.Host,
		Port:         req.Port,
		ResourcePath: req.ResourcePath,
		LocalPath:    req.LocalPath,
		State:        store.StatePending,
		EnqueuedAt:   req.EnqueuedAt,
		DispatchedAt: req.DispatchedAt,
	}
	return key, t.store.SaveRecord(record)
}

// MarkInProgress updates a transfer's state to InProgress
func (t *Tracker) MarkInProgress(key string) error {
	record, err := t.store.GetRecord(key)
	if err != nil {
		return err
	}
	record.State = store.StateInProgress
	return t.store.SaveRecord(record)
}

// MarkCompleted updates a transfer's state to Completed
func (t *Tracker) MarkCompleted(key string, bytes int64, checksum uint64) error {
	record, err := t.store.GetRecord(key)
	if err != nil {
		return err
	}
	record.State = store.StateCompleted
	record.Bytes = bytes
	record.Checksum = checksum
	record.ClosedAt = t.now()
	return t.store.SaveRecord(record)
}

// MarkFailed updates a transfer's state to Failed with an error message
func (t *Tracker) MarkFailed(key string, bytes int64, checksum uint64, err error) error {
	record, getErr := t.store.GetRecord(key)
	if getErr != nil {
		return getErr
	}
	record.State = store.StateFailed
	record.Bytes = bytes
	record.Checksum = checksum
	record.ClosedAt = t.now()
	if err != nil {
		record.Error = err.Error()
	}
	return t.store.SaveRecord(record)
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint
// progress into the journal. It is driven from the engine loop and is not
// safe for concurrent use.
type TrackedWriter struct {
	io.Writer
	tracker *Tracker
	key     string

	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter
func (t *Tracker) NewTrackedWriter(w io.Writer, key string) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         t,
		key:             key,
		lastCheckpointT: t.now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		tw.bytesWritten += int64(n)

		if tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval ||
			tw.tracker.now().Sub(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval {
			tw.checkpoint()
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint() {
	// A failed checkpoint must not fail the transfer.
	record, err := tw.tracker.store.GetRecord(tw.key)
	if err != nil {
		return
	}
	record.Bytes = tw.bytesWritten
	_ = tw.tracker.store.SaveRecord(record)

	tw.lastCheckpoint = tw.bytesWritten
	tw.lastCheckpointT = tw.tracker.now()
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	return tw.bytesWritten
}
