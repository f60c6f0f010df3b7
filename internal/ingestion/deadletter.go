package ingestion

import (
	"sync"
	"time"
)

// DeadLetter is one payload the pipeline could not process, retained with
// enough context to replay or inspect it.
type DeadLetter struct {
	Payload   []byte    `json:"payload"`
	Partition int32     `json:"partition"`
	Position  int64     `json:"position"`
	Reason    string    `json:"reason"`
	Time      time.Time `json:"time"`
}

// DeadLetterQueue is a bounded in-memory queue. When full, the oldest entry
// is dropped so ingestion never blocks on a poisoned payload backlog.
type DeadLetterQueue struct {
	mu       sync.Mutex
	entries  []DeadLetter
	capacity int
	dropped  int64
}

// NewDeadLetterQueue creates a queue holding at most capacity entries.
func NewDeadLetterQueue(capacity int) *DeadLetterQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &DeadLetterQueue{
		entries:  make([]DeadLetter, 0, capacity),
		capacity: capacity,
	}
}

// Add parks one entry, evicting the oldest when the queue is full. The
// payload is copied; the caller's buffer may be recycled afterwards.
func (q *DeadLetterQueue) Add(entry DeadLetter) {
	payload := make([]byte, len(entry.Payload))
	copy(payload, entry.Payload)
	entry.Payload = payload

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == q.capacity {
		copy(q.entries, q.entries[1:])
		q.entries = q.entries[:len(q.entries)-1]
		q.dropped++
	}
	q.entries = append(q.entries, entry)
}

// Len returns the number of parked entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Dropped returns how many entries were evicted to make room.
func (q *DeadLetterQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain returns all parked entries and empties the queue.
func (q *DeadLetterQueue) Drain() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.entries
	q.entries = make([]DeadLetter, 0, q.capacity)
	return out
}
