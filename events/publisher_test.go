package events

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/models"
)

func message() models.OutboxMessage {
	return models.OutboxMessage{
		ID:         uuid.New(),
		Topic:      models.TopicBookingConfirmed,
		MessageKey: uuid.NewString(),
		Payload:    `{"booking_id":"b1"}`,
		Status:     models.OutboxPending,
	}
}

func TestKafkaPublisherSendsPayload(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"booking_id":"b1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewKafkaPublisher(producer, "tutor")
	require.NoError(t, p.Publish(context.Background(), message()))
	assert.ErrorIs(t, p.Publish(context.Background(), message()), sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}

type fakeConn struct {
	published []*nats.Msg
	flushErr  error
	drained   bool
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.published = append(c.published, m)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error { return c.flushErr }

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisherSetsMessageID(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "tutor")
	msg := message()

	require.NoError(t, p.Publish(context.Background(), msg))
	require.Len(t, conn.published, 1)
	got := conn.published[0]
	assert.Equal(t, "tutor.booking.confirmed", got.Subject)
	assert.Equal(t, msg.ID.String(), got.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, msg.Payload, string(got.Data))

	conn.flushErr = nats.ErrTimeout
	assert.ErrorIs(t, p.Publish(context.Background(), msg), nats.ErrTimeout)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNewSelectsDriver(t *testing.T) {
	p, err := New(config.EventsConfig{Driver: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), message()))

	_, err = New(config.EventsConfig{Driver: "kafka"}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(config.EventsConfig{Driver: "smoke-signals"}, zap.NewNop())
	assert.Error(t, err)
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "booking.cancelled", topicName("", models.TopicBookingCancelled))
	assert.Equal(t, "prod.booking.cancelled", topicName("prod", models.TopicBookingCancelled))
}
