package stream

import (
	"time"

	"github.com/stratumdb/stratum/pkg/errors"
)

// span locates one payload inside a Batch's backing buffer and carries the
// log coordinates of the message it came from.
type span struct {
	start  int
	length int

	partition    int32
	position     int64
	nextPosition int64
	timestamp    time.Time
}

// Batch is a fixed-size snapshot of consumed messages. Construction copies
// every payload into a single backing buffer; the source messages can be
// recycled or overwritten by the transport immediately afterwards. A Batch
// never changes after construction and is safe for concurrent readers.
//
// Indexed accessors fail with an index_out_of_range error for any index
// outside [0, Count()).
type Batch struct {
	data  []byte
	spans []span
}

// NewBatch snapshots msgs into an immutable batch. An empty or nil input
// yields a batch with Count() == 0.
func NewBatch(msgs []Message) *Batch {
	total := 0
	for i := range msgs {
		total += len(msgs[i].Payload)
	}

	b := &Batch{
		data:  make([]byte, 0, total),
		spans: make([]span, 0, len(msgs)),
	}

	for i := range msgs {
		m := &msgs[i]
		b.spans = append(b.spans, span{
			start:        len(b.data),
			length:       len(m.Payload),
			partition:    m.Partition,
			position:     m.Position,
			nextPosition: m.NextPosition,
			timestamp:    m.Timestamp,
		})
		b.data = append(b.data, m.Payload...)
	}

	return b
}

// Count returns the number of messages in the batch.
func (b *Batch) Count() int {
	return len(b.spans)
}

// Size returns the total payload bytes held by the batch.
func (b *Batch) Size() int {
	return len(b.data)
}

func (b *Batch) check(i int) error {
	if i < 0 || i >= len(b.spans) {
		return errors.Newf(errors.ErrorTypeIndexOutOfRange,
			"message index %d outside [0, %d)", i, len(b.spans))
	}
	return nil
}

// PayloadAt returns the payload bytes of message i. The returned slice
// aliases the batch's backing buffer; callers must treat it as read-only.
func (b *Batch) PayloadAt(i int) ([]byte, error) {
	if err := b.check(i); err != nil {
		return nil, err
	}
	s := b.spans[i]
	end := s.start + s.length
	return b.data[s.start:end:end], nil
}

// PayloadOffsetAt returns the byte offset of message i's payload within the
// batch's backing buffer.
func (b *Batch) PayloadOffsetAt(i int) (int, error) {
	if err := b.check(i); err != nil {
		return 0, err
	}
	return b.spans[i].start, nil
}

// PayloadLengthAt returns the payload length of message i in bytes.
func (b *Batch) PayloadLengthAt(i int) (int, error) {
	if err := b.check(i); err != nil {
		return 0, err
	}
	return b.spans[i].length, nil
}

// PositionAt returns the log position message i was read from.
func (b *Batch) PositionAt(i int) (int64, error) {
	if err := b.check(i); err != nil {
		return 0, err
	}
	return b.spans[i].position, nil
}

// NextPositionAt returns the log position immediately after message i.
// Checkpointing NextPositionAt(Count()-1) after the whole batch has been
// applied gives at-least-once delivery across restarts.
func (b *Batch) NextPositionAt(i int) (int64, error) {
	if err := b.check(i); err != nil {
		return 0, err
	}
	return b.spans[i].nextPosition, nil
}

// PartitionAt returns the partition message i was read from.
func (b *Batch) PartitionAt(i int) (int32, error) {
	if err := b.check(i); err != nil {
		return 0, err
	}
	return b.spans[i].partition, nil
}

// TimestampAt returns the broker timestamp of message i.
func (b *Batch) TimestampAt(i int) (time.Time, error) {
	if err := b.check(i); err != nil {
		return time.Time{}, err
	}
	return b.spans[i].timestamp, nil
}
