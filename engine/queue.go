package engine

// DefaultQueueCapacity is the number of requests a queue holds before it
// starts evicting.
const DefaultQueueCapacity = 10

// TransferQueue is a bounded FIFO of pending requests. It rejects duplicates
// and, when full, makes room by dropping the oldest entry: newer requests
// win over older ones.
//
// It is not safe for concurrent use.
type TransferQueue struct {
	items    []TransferRequest
	capacity int
}

// NewTransferQueue creates a queue holding at most capacity requests. A
// non-positive capacity means DefaultQueueCapacity.
func NewTransferQueue(capacity int) *TransferQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &TransferQueue{
		items:    make([]TransferRequest, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue appends req unless an entry with the same key is already queued.
// A full queue evicts its oldest entry first. It reports whether req was
// inserted.
func (q *TransferQueue) Enqueue(req TransferRequest) bool {
	k := req.key()
	for _, item := range q.items {
		if item.key() == k {
			return false
		}
	}

	if len(q.items) >= q.capacity {
		q.dropOldest()
	}
	q.items = append(q.items, req)
	return true
}

// PopOldest removes and returns the longest-waiting request.
func (q *TransferQueue) PopOldest() (TransferRequest, bool) {
	if len(q.items) == 0 {
		return TransferRequest{}, false
	}
	req := q.items[0]
	q.dropOldest()
	return req, true
}

// Oldest returns the longest-waiting request without removing it.
func (q *TransferQueue) Oldest() (TransferRequest, bool) {
	if len(q.items) == 0 {
		return TransferRequest{}, false
	}
	return q.items[0], true
}

func (q *TransferQueue) dropOldest() {
	n := copy(q.items, q.items[1:])
	q.items[n] = TransferRequest{}
	q.items = q.items[:n]
}

func (q *TransferQueue) IsEmpty() bool { return len(q.items) == 0 }
func (q *TransferQueue) Len() int      { return len(q.items) }
func (q *TransferQueue) Cap() int      { return q.capacity }

// Snapshot returns a copy of the queued requests, oldest first.
func (q *TransferQueue) Snapshot() []TransferRequest {
	out := make([]TransferRequest, len(q.items))
	copy(out, q.items)
	return out
}
