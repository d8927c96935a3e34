package emitters

import (
	"context"
	"encoding/json"
	"fmt"
	"monallopay/internal/config"
	"monallopay/internal/interfaces"
	"monallopay/internal/models"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var _ interfaces.EventEmitter = (*KafkaEmitter)(nil)

// messageWriter is the part of kafka.Writer the emitter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter implements EventEmitter using Kafka. Messages are keyed by
// tx hash so every event of one transfer lands on the same partition.
type KafkaEmitter struct {
	writer messageWriter
	logger *zerolog.Logger
	mu     sync.Mutex
}

// NewKafkaEmitter creates a new KafkaEmitter
func NewKafkaEmitter(cfg config.KafkaConfig, logger *zerolog.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.BrokerAddress),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
		},
		logger: logger,
	}
}

func (k *KafkaEmitter) EmitEvent(ctx context.Context, event models.TransferEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return fmt.Errorf("kafka emitter is closed")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Record.TxHash),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "asset", Value: []byte(event.Record.Asset.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	k.logger.Info().
		Str("asset", event.Record.Asset.String()).
		Str("txHash", event.Record.TxHash).
		Msg("Successfully emitted event to Kafka")
	return nil
}

func (k *KafkaEmitter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil
		return err
	}
	return nil
}
