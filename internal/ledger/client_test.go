package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetkit/internal/logger"
)

func init() {
	logger.Init("test")
}

type ackRecord struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, acked: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) snapshot() []ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ackRecord(nil), f.records...)
}

func TestConsume_AckNack(t *testing.T) {
	ack := &fakeAcknowledger{}
	msgs := make(chan amqp091.Delivery, 4)

	good, err := NewImportMessage("ok", nil).ToJSON()
	require.NoError(t, err)
	permanent, err := NewImportMessage("permanent", nil).ToJSON()
	require.NoError(t, err)
	transient, err := NewImportMessage("transient", nil).ToJSON()
	require.NoError(t, err)

	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: good}
	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}
	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: permanent}
	msgs <- amqp091.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: transient}
	close(msgs)

	handler := func(_ context.Context, msg *ImportMessage) error {
		switch msg.UserID {
		case "permanent":
			return &PermanentError{Err: errors.New("bad batch")}
		case "transient":
			return errors.New("db down")
		}
		return nil
	}

	err = consume(context.Background(), msgs, handler)
	require.EqualError(t, err, "message channel closed")

	assert.Equal(t, []ackRecord{
		{tag: 1, acked: true},
		{tag: 2, requeue: false},
		{tag: 3, requeue: false},
		{tag: 4, requeue: true},
	}, ack.snapshot())
}

func TestConsume_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan amqp091.Delivery)

	done := make(chan error, 1)
	go func() {
		done <- consume(ctx, msgs, func(context.Context, *ImportMessage) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume did not stop after cancel")
	}
}
