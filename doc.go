// Package stratum provides the real-time ingestion layer of a columnar
// analytical data store: it consumes a partitioned log, dictionary-encodes
// rows as they arrive, and folds them into immutable in-memory segments.
//
// # Architecture
//
// Stratum is built around three core ideas:
//
// 1. Dense dictionary encoding: every column value is replaced by a compact
// int32 ID assigned in first-seen order, so forward indexes store fixed-width
// integers no matter how wide the values are.
//
// 2. Single-writer columns: one goroutine owns all dictionary and index
// writes for a partition while readers run lock-free against immutable
// snapshots.
//
// 3. Batch-then-checkpoint: a batch is folded into the segment in full
// before its end position is saved, giving at-least-once delivery with
// replay on crash.
//
// # Quick Start
//
// The ingest command consumes a topic partition into segments. Its wiring,
// reduced to the essentials:
//
//	import (
//	    "context"
//	    "github.com/stratumdb/stratum/internal/ingestion"
//	    "github.com/stratumdb/stratum/pkg/config"
//	    "github.com/stratumdb/stratum/pkg/decoder"
//	    "github.com/stratumdb/stratum/pkg/logger"
//	    "github.com/stratumdb/stratum/pkg/schema"
//	    "github.com/stratumdb/stratum/pkg/stream"
//	)
//
//	cfg, _ := config.LoadFile("stratum.yaml")
//	sch, _ := schema.LoadFile(cfg.SchemaFile)
//	dec, _ := decoder.New(cfg.Decoder)
//
//	consumer := stream.NewConsumer(cfg.Stream, logger.Get())
//	_ = consumer.Start(cfg.Stream.InitialPosition())
//
//	pipe := ingestion.New(consumer, dec, sch, nil, nil, ingestion.Options{
//	    Topic:      cfg.Stream.Topic,
//	    SealPolicy: cfg.Segment,
//	}, logger.Get())
//	_ = pipe.Run(context.Background())
//
// # Key Packages
//
//	pkg/dictionary - per-column value/ID maps with lock-free readers
//	pkg/rowcodec   - row to dictionary-ID buffer codec
//	pkg/segment    - in-memory segments with forward indexes and sealing
//	pkg/stream     - Kafka partition consumer and producer
//	pkg/decoder    - JSON and Avro payload decoding with decompression
//	pkg/config     - YAML configuration with ${VAR} substitution
//	pkg/errors     - structured error handling
//	pkg/logger     - high-performance structured logging
//	pkg/metrics    - Prometheus instrumentation
//
// # Configuration
//
// One YAML file drives a pipeline:
//
//	schema_file: schema.yaml
//	stream:
//	    brokers: ["localhost:9092"]
//	    topic: events
//	    partition: 0
//	segment:
//	    max_rows: 1000000
//	    max_age: 6h
//
// Environment variables are supported with ${VAR_NAME} syntax, and the
// ingest command accepts per-key overrides by flag or STRATUM_* variables.
package stratum
