package broker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failNext  bool
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _ string, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failNext {
		f.failNext = false
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher("amqp://unused", "studio.notifications", nil)
	p.dial = func() (amqpChannel, error) { return ch, nil }

	err := p.Publish(context.Background(), Message{Type: "session.cancelled", Key: "n-1", Body: map[string]string{"clientId": "c-1"}})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	assert.Equal(t, "studio.notifications", ch.keys[0])
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "session.cancelled", ch.published[0].Type)
	assert.JSONEq(t, `{"clientId":"c-1"}`, string(ch.published[0].Body))
}

func TestAMQPPublisherRedialsAfterFailure(t *testing.T) {
	first := &fakeChannel{failNext: true}
	second := &fakeChannel{}
	dials := 0
	p := NewAMQPPublisher("amqp://unused", "q", nil)
	p.dial = func() (amqpChannel, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	}

	err := p.Publish(context.Background(), Message{Type: "t", Body: 1})
	require.Error(t, err)
	assert.True(t, first.closed)

	require.NoError(t, p.Publish(context.Background(), Message{Type: "t", Body: 2}))
	assert.Equal(t, 2, dials)
	assert.Len(t, second.published, 1)
}

func TestAMQPPublisherDialError(t *testing.T) {
	p := NewAMQPPublisher("amqp://unused", "q", nil)
	p.dial = func() (amqpChannel, error) { return nil, errors.New("refused") }
	assert.Error(t, p.Publish(context.Background(), Message{Type: "t"}))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))
	require.NoError(t, p.Publish(context.Background(), Message{Type: "waitlist.promoted", Key: "k"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "notification published", logs.All()[0].Message)
}
