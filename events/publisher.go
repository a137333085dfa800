package events

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/models"
)

// Publisher delivers relayed outbox messages to a broker. Delivery is at
// least once; consumers dedupe on the message id.
type Publisher interface {
	Publish(ctx context.Context, msg models.OutboxMessage) error
	Close() error
}

// New builds the publisher selected by cfg.Driver.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		producer, err := NewSyncProducer(cfg.Brokers)
		if err != nil {
			return nil, err
		}
		return NewKafkaPublisher(producer, cfg.TopicPrefix), nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("tutor-marketplace"))
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		return NewNATSPublisher(nc, cfg.TopicPrefix), nil
	case "log", "":
		return NewLogPublisher(logger), nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
}

func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return producer, nil
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewKafkaPublisher(producer sarama.SyncProducer, prefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: prefix}
}

func (p *KafkaPublisher) Publish(_ context.Context, msg models.OutboxMessage) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topicName(p.prefix, msg.Topic),
		Key:   sarama.StringEncoder(msg.MessageKey),
		Value: sarama.StringEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(msg.ID.String())},
			{Key: []byte("event-type"), Value: []byte(msg.Topic)},
		},
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

type NATSPublisher struct {
	nc     natsConn
	prefix string
}

func NewNATSPublisher(nc natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(ctx context.Context, msg models.OutboxMessage) error {
	m := nats.NewMsg(topicName(p.prefix, msg.Topic))
	m.Data = []byte(msg.Payload)
	m.Header.Set(nats.MsgIdHdr, msg.ID.String())
	m.Header.Set("Message-Key", msg.MessageKey)
	if err := p.nc.PublishMsg(m); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, msg models.OutboxMessage) error {
	p.logger.Info("event",
		zap.String("id", msg.ID.String()),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.MessageKey),
		zap.String("payload", msg.Payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

func topicName(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}
