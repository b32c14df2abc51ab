package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrRecordNotFound is returned when a transfer is not found in the journal.
	ErrRecordNotFound = errors.New("transfer record not found")
)

var (
	transfersBucket = []byte("transfers")
)

// TransferState represents the current state of a transfer.
type TransferState string

const (
	StatePending    TransferState = "Pending"
	StateInProgress TransferState = "InProgress"
	StateCompleted  TransferState = "Completed"
	StateFailed     TransferState = "Failed"
)

// TransferRecord is the journal entry for one dispatched transfer.
type TransferRecord struct {
	// Key is unique across process runs: "<run id>/<zero-padded request id>".
	Key          string        `json:"key"`
	RequestID    uint64        `json:"request_id"`
	Kind         string        `json:"kind"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ResourcePath string        `json:"resource_path"`
	LocalPath    string        `json:"local_path"`
	State        TransferState `json:"state"`
	Bytes        int64         `json:"bytes"`
	Checksum     uint64        `json:"checksum,omitempty"`
	Error        string        `json:"error,omitempty"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
	DispatchedAt time.Time     `json:"dispatched_at"`
	ClosedAt     time.Time     `json:"closed_at,omitempty"`
}

// Store defines the interface of the transfer journal.
type Store interface {
	SaveRecord(rec *TransferRecord) error
	GetRecord(key string) (*TransferRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transfersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transfers bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveRecord saves a record to the journal, replacing any record with the same key.
func (s *BoltStore) SaveRecord(rec *TransferRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transfersBucket)

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		err = b.Put([]byte(rec.Key), data)
		if err != nil {
			return fmt.Errorf("failed to put record: %w", err)
		}

		return nil
	})
}

// GetRecord retrieves a record from the journal.
func (s *BoltStore) GetRecord(key string) (*TransferRecord, error) {
	var rec TransferRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(transfersBucket)
		data := b.Get([]byte(key))
		if data == nil {
			return ErrRecordNotFound
		}

		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Recent returns up to limit records ordered by dispatch time, newest first.
// A non-positive limit returns every record.
func (s *BoltStore) Recent(limit int) ([]*TransferRecord, error) {
	var records []*TransferRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(transfersBucket).ForEach(func(k, v []byte) error {
			var rec TransferRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %q: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Keys group by run, so order by time rather than by key.
	sortNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func sortNewestFirst(records []*TransferRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.DispatchedAt.Equal(b.DispatchedAt) {
			return a.DispatchedAt.After(b.DispatchedAt)
		}
		return a.RequestID > b.RequestID
	})
}
