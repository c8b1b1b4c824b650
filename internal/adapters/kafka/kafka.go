// Package kafka ingests order batches from a Kafka topic. Each message value
// is one batch document: {"orders":[...]}.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"orderbridge/internal/commit"
	"orderbridge/internal/orders"

	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrDisabled is returned when no brokers are configured.
var ErrDisabled = errors.New("kafka disabled")

// Batch is the message value format.
type Batch struct {
	Orders []orders.Envelope `json:"orders"`
}

// Reader is the subset of *kafkago.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Processor runs a batch through the commit pipeline.
type Processor interface {
	ProcessBatch(ctx context.Context, envs []orders.Envelope) []commit.Result
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewReader builds a consumer-group reader. Offsets are committed
// explicitly by the consumer.
func NewReader(brokers []string, topic, groupID string) (*kafkago.Reader, error) {
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	}), nil
}

// NewWriter builds a writer that hashes message keys onto partitions.
func NewWriter(brokers []string, topic string) (*kafkago.Writer, error) {
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}, nil
}

// MessageWriter is the subset of *kafkago.Writer used to publish batches.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// PublishBatch writes one batch document keyed by key.
func PublishBatch(ctx context.Context, w MessageWriter, key string, batch Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafkago.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}

// Consumer feeds fetched batches into a Processor.
type Consumer struct {
	reader    Reader
	processor Processor
	logger    *slog.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(reader Reader, processor Processor, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, processor: processor, logger: logger}
}

// Run fetches, processes and commits messages until ctx is done. A message
// is committed only after its batch has been processed, so a batch cut
// short by shutdown is redelivered; the ledger absorbs the repeat.
// Messages that cannot be decoded are logged and committed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.handle(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	var batch Batch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		log.Error("skipping undecodable batch", "err", err)
		return
	}
	if len(batch.Orders) == 0 {
		log.Warn("skipping empty batch")
		return
	}

	results := c.processor.ProcessBatch(ctx, batch.Orders)
	for _, res := range results {
		attrs := []any{"external_order_id", res.ExternalOrderID, "instance_id", res.InstanceID, "outcome", string(res.Outcome)}
		if res.Outcome.Succeeded() {
			log.Info("order processed", append(attrs, "external_doc_id", res.ExternalDocID)...)
			continue
		}
		log.Warn("order not created", append(attrs, "message", res.Message)...)
	}
}
