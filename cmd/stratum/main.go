package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/internal/ingestion"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/decoder"
	jsonpool "github.com/stratumdb/stratum/pkg/json"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/observability"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/stream"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - real-time columnar ingestion",
		Long: `Stratum is the real-time ingestion layer of a columnar analytical store.
It consumes a log partition, dictionary-encodes rows as they arrive, and folds
them into immutable in-memory segments that are sealed by row count, age, or
process memory.`,
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratum v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Main ingest command
	var configFile string

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Consume a log partition into in-memory segments",
		Long: `Consume a log partition and fold every message into the active segment.

Settings come from the configuration file; individual values can be overridden
with flags or STRATUM_* environment variables (flag beats environment beats
file).

Example:
  stratum ingest --config stratum.yaml --topic events --partition 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, configFile)
		},
	}

	ingestCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration YAML file (required)")
	_ = ingestCmd.MarkFlagRequired("config")

	// Override flags; bound to config keys through viper in bindOverrides.
	ingestCmd.Flags().StringSlice("brokers", nil, "Kafka broker addresses")
	ingestCmd.Flags().String("topic", "", "Topic to consume")
	ingestCmd.Flags().Int32("partition", 0, "Partition to consume")
	ingestCmd.Flags().String("start-position", "", "Position when no checkpoint exists (earliest, latest)")
	ingestCmd.Flags().String("schema", "", "Path to table schema YAML file")
	ingestCmd.Flags().String("error-strategy", "", "What to do with bad payloads (fail, skip, dead_letter)")
	ingestCmd.Flags().String("metrics-addr", "", "Prometheus listen address")
	ingestCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(ingestCmd)

	// Seed command for generating test traffic
	var (
		seedConfigFile  string
		seedCount       int
		seedInterval    time.Duration
		seedCardinality int
		seedCompression string
		seedRandom      int64
	)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Publish synthetic rows to the configured topic",
		Long: `Publish synthetic JSON rows matching the table schema. Useful for exercising
an ingest pipeline end to end without a real upstream producer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(seedConfigFile, seedCount, seedInterval, seedCardinality, seedCompression, seedRandom)
		},
	}

	seedCmd.Flags().StringVarP(&seedConfigFile, "config", "c", "", "Path to configuration YAML file (required)")
	_ = seedCmd.MarkFlagRequired("config")
	seedCmd.Flags().IntVar(&seedCount, "count", 10000, "Number of rows to publish")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "Delay between publishes (e.g. 10ms); 0 publishes as fast as possible")
	seedCmd.Flags().IntVar(&seedCardinality, "cardinality", 100, "Distinct values generated per column")
	seedCmd.Flags().StringVar(&seedCompression, "compression", "", "Payload compression (none, gzip, snappy, lz4, zstd, s2); defaults to the decoder setting")
	seedCmd.Flags().Int64Var(&seedRandom, "seed", 0, "Random seed; 0 uses the current time")

	root.AddCommand(seedCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindOverrides maps ingest flags and STRATUM_* environment variables onto
// configuration keys, e.g. --topic / STRATUM_STREAM_TOPIC / stream.topic.
func bindOverrides(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("STRATUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindPFlag("stream.brokers", cmd.Flags().Lookup("brokers"))
	_ = v.BindPFlag("stream.topic", cmd.Flags().Lookup("topic"))
	_ = v.BindPFlag("stream.partition", cmd.Flags().Lookup("partition"))
	_ = v.BindPFlag("stream.start_position", cmd.Flags().Lookup("start-position"))
	_ = v.BindPFlag("schema_file", cmd.Flags().Lookup("schema"))
	_ = v.BindPFlag("pipeline.error_strategy", cmd.Flags().Lookup("error-strategy"))
	_ = v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))
	_ = v.BindPFlag("logging.level", cmd.Flags().Lookup("log-level"))

	return v
}

// applyOverrides copies every explicitly set flag or environment value onto
// the loaded configuration.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("stream.brokers") {
		cfg.Stream.Brokers = v.GetStringSlice("stream.brokers")
	}
	if v.IsSet("stream.topic") {
		cfg.Stream.Topic = v.GetString("stream.topic")
	}
	if v.IsSet("stream.partition") {
		cfg.Stream.Partition = v.GetInt32("stream.partition")
	}
	if v.IsSet("stream.start_position") {
		cfg.Stream.StartPosition = v.GetString("stream.start_position")
	}
	if v.IsSet("schema_file") {
		cfg.SchemaFile = v.GetString("schema_file")
	}
	if v.IsSet("pipeline.error_strategy") {
		cfg.Pipeline.ErrorStrategy = v.GetString("pipeline.error_strategy")
	}
	if v.IsSet("metrics.addr") {
		cfg.Metrics.Addr = v.GetString("metrics.addr")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
}

// runIngest wires the consumer, decoder, and segment pipeline together and
// runs until interrupted.
func runIngest(cmd *cobra.Command, configFile string) error {
	cfg := config.New()
	if err := config.Load(configFile, cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	applyOverrides(bindOverrides(cmd), cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get().With(zap.String("component", "stratum-cli"))

	if err := observability.Init(cfg.Tracing); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	sch, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return fmt.Errorf("schema error: %w", err)
	}

	dec, err := decoder.New(cfg.Decoder)
	if err != nil {
		return fmt.Errorf("decoder error: %w", err)
	}

	if cfg.Metrics.Enabled {
		srv, errCh := metrics.Serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := <-errCh; err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resume from the last checkpoint when one exists, otherwise start at
	// the configured position.
	checkpoints := ingestion.NewMemoryCheckpointer()
	position := cfg.Stream.InitialPosition()
	if saved, ok, err := checkpoints.Load(ctx, cfg.Stream.Topic, cfg.Stream.Partition); err != nil {
		return err
	} else if ok {
		position = saved
	}

	consumer := stream.NewConsumer(cfg.Stream, log)
	if err := consumer.Start(position); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warn("failed to close consumer", zap.Error(err))
		}
	}()

	pipe := ingestion.New(consumer, dec, sch, checkpoints, nil, ingestion.Options{
		Table:              sch.Name(),
		Topic:              cfg.Stream.Topic,
		Partition:          cfg.Stream.Partition,
		ErrorStrategy:      ingestion.ErrorStrategy(cfg.Pipeline.ErrorStrategy),
		DeadLetterCapacity: cfg.Pipeline.DeadLetterCapacity,
		StatsInterval:      time.Duration(cfg.Pipeline.StatsInterval),
		SealPolicy:         cfg.Segment,
	}, log)

	log.Info("starting ingestion",
		zap.String("table", sch.Name()),
		zap.String("topic", cfg.Stream.Topic),
		zap.Int32("partition", cfg.Stream.Partition),
		zap.Int64("position", position))

	start := time.Now()
	if err := pipe.Run(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	duration := time.Since(start)
	rows := pipe.Stats().RowsIndexed.Load()
	log.Info("ingestion finished",
		zap.Duration("duration", duration),
		zap.Int64("rows_indexed", rows),
		zap.Float64("rows_per_second", float64(rows)/duration.Seconds()))

	return nil
}

// runSeed publishes synthetic rows matching the schema to the configured
// topic.
func runSeed(configFile string, count int, interval time.Duration, cardinality int, compressionName string, seed int64) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get().With(zap.String("component", "stratum-seed"))

	sch, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return fmt.Errorf("schema error: %w", err)
	}

	if compressionName == "" {
		compressionName = cfg.Decoder.Compression
	}
	algorithm, err := compression.ParseAlgorithm(compressionName)
	if err != nil {
		return err
	}
	var codec compression.Compressor
	if algorithm != compression.None {
		codec, err = compression.New(algorithm, compression.Default)
		if err != nil {
			return err
		}
	}

	producer := stream.NewProducer(cfg.Stream, log)
	if err := producer.Connect(); err != nil {
		return fmt.Errorf("failed to connect producer: %w", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Warn("failed to close producer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: synthetic test data

	log.Info("seeding topic",
		zap.String("topic", cfg.Stream.Topic),
		zap.Int("count", count),
		zap.String("compression", string(algorithm)),
		zap.Int64("seed", seed))

	start := time.Now()
	sent := 0
	for ; sent < count; sent++ {
		if ctx.Err() != nil {
			break
		}

		payload, err := syntheticPayload(sch, rng, cardinality)
		if err != nil {
			return err
		}
		if codec != nil {
			payload, err = codec.Compress(payload)
			if err != nil {
				return err
			}
		}

		key := []byte(fmt.Sprintf("row-%d", sent))
		if _, _, err := producer.Publish(ctx, key, payload); err != nil {
			return fmt.Errorf("publish failed after %d rows: %w", sent, err)
		}

		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
			}
		}
		if (sent+1)%1000 == 0 {
			log.Info("seed progress", zap.Int("published", sent+1))
		}
	}

	duration := time.Since(start)
	log.Info("seed finished",
		zap.Int("published", sent),
		zap.Duration("duration", duration),
		zap.Float64("messages_per_second", float64(sent)/duration.Seconds()))

	return nil
}

// syntheticPayload builds one JSON row with plausible values for every
// schema column.
func syntheticPayload(sch *schema.Schema, rng *rand.Rand, cardinality int) ([]byte, error) {
	if cardinality <= 0 {
		cardinality = 1
	}
	values := make(map[string]interface{}, sch.NumColumns())
	for i := 0; i < sch.NumColumns(); i++ {
		col := sch.ColumnAt(i)
		if col.MultiValued {
			n := 1 + rng.Intn(3)
			vals := make([]interface{}, n)
			for j := range vals {
				vals[j] = fmt.Sprintf("%s_%d", col.Name, rng.Intn(cardinality))
			}
			values[col.Name] = vals
			continue
		}
		values[col.Name] = fmt.Sprintf("%s_%d", col.Name, rng.Intn(cardinality))
	}
	return jsonpool.Marshal(values)
}
