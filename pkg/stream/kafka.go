package stream

import (
	"context"
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Sentinel positions accepted by Consumer.Start when no checkpoint exists.
const (
	PositionEarliest = sarama.OffsetOldest
	PositionLatest   = sarama.OffsetNewest
)

const (
	defaultFetchMaxMessages = 512
	defaultFetchMaxWait     = 100 * time.Millisecond
)

// Config describes the connection to one partition of the ingestion log.
type Config struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	Partition int32    `yaml:"partition"`
	ClientID  string   `yaml:"client_id"`

	SecurityProtocol      string `yaml:"security_protocol"`
	SASLMechanism         string `yaml:"sasl_mechanism"`
	SASLUsername          string `yaml:"sasl_username"`
	SASLPassword          string `yaml:"sasl_password"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`

	// Consumer settings
	StartPosition    string         `yaml:"start_position"` // earliest, latest
	FetchMaxMessages int            `yaml:"fetch_max_messages"`
	FetchMaxWait     model.Duration `yaml:"fetch_max_wait"`
	FetchMaxBytes    int32          `yaml:"fetch_max_bytes"`

	// Producer settings (load generator)
	ProducerAcks        string `yaml:"producer_acks"` // all, 1, 0
	ProducerRetries     int    `yaml:"producer_retries"`
	ProducerCompression string `yaml:"producer_compression"` // none, gzip, snappy, lz4, zstd
}

// Validate checks the fields required to open a connection.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New(errors.ErrorTypeConfig, "stream: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New(errors.ErrorTypeConfig, "stream: topic is required")
	}
	if c.Partition < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "stream: invalid partition %d", c.Partition)
	}
	return nil
}

// InitialPosition maps the configured start_position to a sentinel log
// position, used when no checkpoint exists for the partition.
func (c *Config) InitialPosition() int64 {
	switch c.StartPosition {
	case "earliest":
		return PositionEarliest
	default:
		return PositionLatest
	}
}

// buildSaramaConfig translates Config into a sarama client configuration.
// Producer and consumer sections are both populated; each side only reads
// its own.
func buildSaramaConfig(c Config) *sarama.Config {
	config := sarama.NewConfig()

	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}

	// Consumer settings
	config.Consumer.Return.Errors = true
	if c.FetchMaxBytes > 0 {
		config.Consumer.Fetch.Default = c.FetchMaxBytes
	}

	// Producer settings
	switch c.ProducerAcks {
	case "all", "-1":
		config.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	config.Producer.Retry.Max = c.ProducerRetries
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch c.ProducerCompression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	// Security settings
	if c.SecurityProtocol == "SASL_SSL" || c.SecurityProtocol == "SSL" {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: c.TLSInsecureSkipVerify,
		}
	}

	if c.SASLMechanism != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = c.SASLUsername
		config.Net.SASL.Password = c.SASLPassword

		switch c.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		}
	}

	return config
}

// Consumer reads one partition of the ingestion log from an explicit
// position and groups messages into batches. Offset management is the
// caller's responsibility through the batch's NextPositionAt values.
type Consumer struct {
	config Config
	logger *zap.Logger

	client    sarama.Client
	consumer  sarama.Consumer
	partition sarama.PartitionConsumer

	running int32
	stopCh  chan struct{}
}

// NewConsumer creates a partition consumer. Call Start before Fetch.
func NewConsumer(config Config, logger *zap.Logger) *Consumer {
	if config.FetchMaxMessages <= 0 {
		config.FetchMaxMessages = defaultFetchMaxMessages
	}
	if config.FetchMaxWait <= 0 {
		config.FetchMaxWait = model.Duration(defaultFetchMaxWait)
	}
	return &Consumer{
		config: config,
		logger: logger.With(zap.String("component", "stream_consumer")),
		stopCh: make(chan struct{}),
	}
}

// Start connects to the brokers and begins consuming the configured
// partition from position. Pass a checkpointed position to resume, or
// PositionEarliest/PositionLatest when none exists.
func (c *Consumer) Start(position int64) error {
	if atomic.LoadInt32(&c.running) == 1 {
		return errors.New(errors.ErrorTypeConnection, "consumer is already running")
	}
	if err := c.config.Validate(); err != nil {
		return err
	}

	kafkaConfig := buildSaramaConfig(c.config)

	var err error
	c.client, err = sarama.NewClient(c.config.Brokers, kafkaConfig)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create log client")
	}

	c.consumer, err = sarama.NewConsumerFromClient(c.client)
	if err != nil {
		c.client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create consumer")
	}

	c.partition, err = c.consumer.ConsumePartition(c.config.Topic, c.config.Partition, position)
	if err != nil {
		c.consumer.Close()
		c.client.Close()
		return errors.Wrapf(err, errors.ErrorTypeConnection,
			"failed to consume %s/%d from position %d", c.config.Topic, c.config.Partition, position)
	}

	atomic.StoreInt32(&c.running, 1)

	c.logger.Info("consuming partition",
		zap.Strings("brokers", c.config.Brokers),
		zap.String("topic", c.config.Topic),
		zap.Int32("partition", c.config.Partition),
		zap.Int64("position", position))

	return nil
}

// Fetch collects messages until fetch_max_messages are buffered or
// fetch_max_wait elapses, whichever comes first, and snapshots them into a
// Batch. An empty batch means the window passed with nothing to read.
func (c *Consumer) Fetch(ctx context.Context) (*Batch, error) {
	if atomic.LoadInt32(&c.running) == 0 {
		return nil, errors.New(errors.ErrorTypeConnection, "consumer is not running")
	}

	msgs := make([]Message, 0, c.config.FetchMaxMessages)
	timer := time.NewTimer(time.Duration(c.config.FetchMaxWait))
	defer timer.Stop()

	for len(msgs) < c.config.FetchMaxMessages {
		select {
		case m, ok := <-c.partition.Messages():
			if !ok {
				return NewBatch(msgs), nil
			}
			msgs = append(msgs, Message{
				Key:          m.Key,
				Payload:      m.Value,
				Topic:        m.Topic,
				Partition:    m.Partition,
				Position:     m.Offset,
				NextPosition: m.Offset + 1,
				Timestamp:    m.Timestamp,
			})

		case err := <-c.partition.Errors():
			if err == nil {
				continue
			}
			return nil, errors.Wrapf(err.Err, errors.ErrorTypeConnection,
				"partition %s/%d consume error", err.Topic, err.Partition)

		case <-timer.C:
			return NewBatch(msgs), nil

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-c.stopCh:
			return NewBatch(msgs), nil
		}
	}

	return NewBatch(msgs), nil
}

// HighWaterMark returns the partition's latest known end position, for lag
// accounting. Valid only while the consumer is running.
func (c *Consumer) HighWaterMark() int64 {
	if atomic.LoadInt32(&c.running) == 0 {
		return 0
	}
	return c.partition.HighWaterMarkOffset()
}

// Close stops the consumer and releases the client connection.
func (c *Consumer) Close() error {
	if !atomic.CompareAndSwapInt32(&c.running, 1, 0) {
		return errors.New(errors.ErrorTypeConnection, "consumer is not running")
	}

	close(c.stopCh)

	if c.partition != nil {
		if err := c.partition.Close(); err != nil {
			c.logger.Error("failed to close partition consumer", zap.Error(err))
		}
	}
	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			c.logger.Error("failed to close consumer", zap.Error(err))
		}
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Error("failed to close log client", zap.Error(err))
		}
	}

	c.logger.Info("consumer closed")

	return nil
}

// Producer publishes synthetic rows to the configured topic. It is used by
// the load generator, not by the ingestion path.
type Producer struct {
	config Config
	logger *zap.Logger

	client   sarama.Client
	producer sarama.SyncProducer

	running int32
}

// NewProducer creates a producer for the configured topic. Call Connect
// before Publish.
func NewProducer(config Config, logger *zap.Logger) *Producer {
	return &Producer{
		config: config,
		logger: logger.With(zap.String("component", "stream_producer")),
	}
}

// Connect establishes the broker connection.
func (p *Producer) Connect() error {
	if atomic.LoadInt32(&p.running) == 1 {
		return errors.New(errors.ErrorTypeConnection, "producer is already connected")
	}
	if err := p.config.Validate(); err != nil {
		return err
	}

	kafkaConfig := buildSaramaConfig(p.config)

	var err error
	p.client, err = sarama.NewClient(p.config.Brokers, kafkaConfig)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create log client")
	}

	p.producer, err = sarama.NewSyncProducerFromClient(p.client)
	if err != nil {
		p.client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create producer")
	}

	atomic.StoreInt32(&p.running, 1)

	p.logger.Info("connected to log",
		zap.Strings("brokers", p.config.Brokers),
		zap.String("topic", p.config.Topic))

	return nil
}

// Publish sends one payload to the configured topic and returns the
// partition and position it was written at.
func (p *Producer) Publish(ctx context.Context, key, payload []byte) (int32, int64, error) {
	if atomic.LoadInt32(&p.running) == 0 {
		return 0, 0, errors.New(errors.ErrorTypeConnection, "producer is not connected")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	message := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Value: sarama.ByteEncoder(payload),
	}
	if len(key) > 0 {
		message.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish message")
	}

	p.logger.Debug("published message",
		zap.Int32("partition", partition),
		zap.Int64("position", offset),
		zap.Int("bytes", len(payload)))

	return partition, offset, nil
}

// Close releases the producer and its client connection.
func (p *Producer) Close() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return errors.New(errors.ErrorTypeConnection, "producer is not connected")
	}

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("failed to close producer", zap.Error(err))
		}
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Error("failed to close log client", zap.Error(err))
		}
	}

	p.logger.Info("producer closed")

	return nil
}
