package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealer-support-server/internal/model"
)

type recordingPublisher struct {
	events []*SessionEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e *SessionEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_PublishesToAll(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("down")}
	c := &recordingPublisher{}

	e := New(TypeStatusChanged, "s1", time.Now())
	err := Multi{a, nil, b, c}.Publish(context.Background(), e)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Len(t, c.events, 1)
	assert.NotEmpty(t, e.ID)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "s1" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded SessionEvent
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.Status != model.SessionStatusPendingAgent {
			return errors.New("unexpected status " + string(decoded.Status))
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "support-session-events", nil)
	e := New(TypeStatusChanged, "s1", time.Now())
	e.Status = model.SessionStatusPendingAgent

	require.NoError(t, p.Publish(context.Background(), e))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_SendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "topic", nil)
	err := p.Publish(context.Background(), New(TypeSessionDeleted, "s1", time.Now()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
