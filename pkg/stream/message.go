// Package stream provides the log transport layer: a Kafka partition
// consumer that collects raw messages into immutable batches, and the
// producer used by the load generator. Batches snapshot payload bytes at
// construction so downstream decoding never races the transport.
package stream

import "time"

// Message is one raw log entry as fetched from a partition. Position is the
// message's own log position; NextPosition is the position to resume
// consumption from once this message has been fully processed.
type Message struct {
	Key     []byte
	Payload []byte

	Topic        string
	Partition    int32
	Position     int64
	NextPosition int64
	Timestamp    time.Time
}
