package jetstream_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/mocks"
	"github.com/feral-file/ff-entity-indexer/internal/providers/jetstream"
)

// fakeMsg records how a message was acknowledged
type fakeMsg struct {
	natsjs.Msg
	data    []byte
	outcome string
}

func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Ack() error   { m.outcome = "ack"; return nil }
func (m *fakeMsg) Nak() error   { m.outcome = "nak"; return nil }
func (m *fakeMsg) Term() error  { m.outcome = "term"; return nil }

type fakeConsumeContext struct {
	natsjs.ConsumeContext
	stopped bool
}

func (c *fakeConsumeContext) Stop() { c.stopped = true }

func subscriberConfig() jetstream.Config {
	cfg := testConfig()
	cfg.StreamName = "PLAYS"
	cfg.Subject = "plays.recorded"
	cfg.ConsumerName = "challenge-worker"
	cfg.AckWait = 30 * time.Second
	cfg.MaxDeliver = 5
	return cfg
}

func newTestSubscriber(t *testing.T, ctrl *gomock.Controller) (jetstream.Subscriber, *mocks.MockJetStream, *mocks.MockNatsConn) {
	t.Helper()
	natsJS := mocks.NewMockNatsJetStream(ctrl)
	conn := mocks.NewMockNatsConn(ctrl)
	js := mocks.NewMockJetStream(ctrl)

	natsJS.EXPECT().Connect("nats://localhost:4222", gomock.Any()).Return(conn, js, nil)
	js.EXPECT().CreateOrUpdateStream(gomock.Any(), natsjs.StreamConfig{
		Name:     "PLAYS",
		Subjects: []string{"plays.recorded"},
	}).Return(nil)

	sub, err := jetstream.NewSubscriber(context.Background(), subscriberConfig(), natsJS)
	require.NoError(t, err)
	return sub, js, conn
}

func TestSubscriber_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sub, js, conn := newTestSubscriber(t, ctrl)
	consumer := mocks.NewMockJetStreamConsumer(ctrl)
	cc := &fakeConsumeContext{}
	deliver := make(chan natsjs.MessageHandler, 1)

	js.EXPECT().CreateOrUpdateConsumer(gomock.Any(), "PLAYS", natsjs.ConsumerConfig{
		Durable:       "challenge-worker",
		AckPolicy:     natsjs.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: "plays.recorded",
	}).Return(consumer, nil)
	consumer.EXPECT().Consume(gomock.Any()).DoAndReturn(
		func(h natsjs.MessageHandler, _ ...natsjs.PullConsumeOpt) (natsjs.ConsumeContext, error) {
			deliver <- h
			return cc, nil
		})

	var handled []string
	handler := func(_ context.Context, data []byte) error {
		handled = append(handled, string(data))
		switch string(data) {
		case "garbage":
			return fmt.Errorf("%w: unexpected token", domain.ErrDeserialize)
		case "invalid":
			return domain.Invalid("track id is required")
		case "retry":
			return errors.New("database unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, handler) }()

	h := <-deliver
	msgs := []*fakeMsg{
		{data: []byte("ok")},
		{data: []byte("garbage")},
		{data: []byte("invalid")},
		{data: []byte("retry")},
	}
	for _, m := range msgs {
		h(m)
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"ok", "garbage", "invalid", "retry"}, handled)
	assert.Equal(t, "ack", msgs[0].outcome)
	assert.Equal(t, "term", msgs[1].outcome)
	assert.Equal(t, "term", msgs[2].outcome)
	assert.Equal(t, "nak", msgs[3].outcome)
	assert.True(t, cc.stopped)

	conn.EXPECT().Drain().Return(nil)
	sub.Close()
}

func TestSubscriber_RunErrors(t *testing.T) {
	noop := func(context.Context, []byte) error { return nil }

	t.Run("consumer creation failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		sub, js, _ := newTestSubscriber(t, ctrl)

		js.EXPECT().CreateOrUpdateConsumer(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("stream not found"))
		err := sub.Run(context.Background(), noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "challenge-worker")
	})

	t.Run("consume failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		sub, js, _ := newTestSubscriber(t, ctrl)
		consumer := mocks.NewMockJetStreamConsumer(ctrl)

		js.EXPECT().CreateOrUpdateConsumer(gomock.Any(), gomock.Any(), gomock.Any()).Return(consumer, nil)
		consumer.EXPECT().Consume(gomock.Any()).Return(nil, errors.New("closed"))
		require.Error(t, sub.Run(context.Background(), noop))
	})

	t.Run("close falls back to a hard close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		sub, _, conn := newTestSubscriber(t, ctrl)

		conn.EXPECT().Drain().Return(errors.New("draining"))
		conn.EXPECT().Close()
		sub.Close()
	})
}
