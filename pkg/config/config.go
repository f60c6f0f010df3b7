// Package config defines the ingestion daemon's configuration: one sectioned
// structure covering the log connection, payload decoding, segment rotation,
// pipeline error handling and the ambient observability settings.
//
// Configuration loads from a YAML file with ${VAR} environment substitution;
// the CLI layers flag and environment overrides on top.
package config

import (
	"time"

	"github.com/prometheus/common/model"

	"github.com/stratumdb/stratum/pkg/decoder"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/observability"
	"github.com/stratumdb/stratum/pkg/segment"
	"github.com/stratumdb/stratum/pkg/stream"
)

// Error strategies for rows and payloads the pipeline cannot process.
const (
	// StrategyFail stops the pipeline on the first bad row.
	StrategyFail = "fail"
	// StrategySkip counts and logs bad rows, then moves on.
	StrategySkip = "skip"
	// StrategyDeadLetter parks bad payloads in a bounded in-memory queue.
	StrategyDeadLetter = "dead_letter"
)

// Config is the full ingestion daemon configuration.
type Config struct {
	// SchemaFile points at the YAML table definition ingested rows are
	// encoded against.
	SchemaFile string `yaml:"schema_file"`

	Stream   stream.Config        `yaml:"stream"`
	Decoder  decoder.Config       `yaml:"decoder"`
	Segment  segment.Policy       `yaml:"segment"`
	Pipeline PipelineConfig       `yaml:"pipeline"`
	Logging  logger.Config        `yaml:"logging"`
	Tracing  observability.Config `yaml:"tracing"`
	Metrics  MetricsConfig        `yaml:"metrics"`
}

// PipelineConfig holds the orchestrator's knobs.
type PipelineConfig struct {
	// ErrorStrategy is one of fail, skip, dead_letter.
	ErrorStrategy string `yaml:"error_strategy"`
	// DeadLetterCapacity bounds the in-memory dead-letter queue.
	DeadLetterCapacity int `yaml:"dead_letter_capacity"`
	// StatsInterval paces the periodic throughput log line.
	StatsInterval model.Duration `yaml:"stats_interval"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// New returns a Config with production defaults. Loading a file overlays
// these, so absent keys keep their defaults.
func New() *Config {
	return &Config{
		Stream: stream.Config{
			ClientID:         "stratum-ingest",
			StartPosition:    "earliest",
			FetchMaxMessages: 512,
			FetchMaxWait:     model.Duration(100 * time.Millisecond),
			ProducerAcks:     "all",
			ProducerRetries:  3,
		},
		Decoder: decoder.Config{
			Format: decoder.FormatJSON,
		},
		Segment: segment.DefaultPolicy(),
		Pipeline: PipelineConfig{
			ErrorStrategy:      StrategySkip,
			DeadLetterCapacity: 10_000,
			StatsInterval:      model.Duration(30 * time.Second),
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Tracing: observability.Config{
			ServiceName:  "stratum",
			SamplingRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9102",
		},
	}
}

// Validate checks cross-field consistency. Stream connectivity fields are
// validated by the stream package.
func (c *Config) Validate() error {
	if c.SchemaFile == "" {
		return errors.New(errors.ErrorTypeConfig, "schema_file is required")
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}

	switch c.Pipeline.ErrorStrategy {
	case StrategyFail, StrategySkip, StrategyDeadLetter:
	default:
		return errors.Newf(errors.ErrorTypeConfig,
			"unknown error_strategy %q (want fail, skip or dead_letter)", c.Pipeline.ErrorStrategy)
	}
	if c.Pipeline.ErrorStrategy == StrategyDeadLetter && c.Pipeline.DeadLetterCapacity <= 0 {
		return errors.New(errors.ErrorTypeConfig, "dead_letter_capacity must be positive")
	}

	if c.Segment.MaxRows <= 0 && c.Segment.MaxAge <= 0 && c.Segment.MaxProcessMemory == 0 {
		return errors.New(errors.ErrorTypeConfig, "segment needs at least one seal threshold")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New(errors.ErrorTypeConfig, "metrics.addr is required when metrics are enabled")
	}

	return nil
}
