package jetstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metrics"
)

// Handler processes the payload of one message
type Handler func(ctx context.Context, data []byte) error

// Subscriber consumes a subject through a durable pull consumer
type Subscriber interface {
	// Run delivers messages to handler one at a time until ctx is cancelled
	Run(ctx context.Context, handler Handler) error

	// Close closes the connection
	Close()
}

type subscriber struct {
	nc  adapter.NatsConn
	js  adapter.JetStream
	cfg Config
}

// NewSubscriber connects to NATS and makes sure the stream exists
func NewSubscriber(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (Subscriber, error) {
	nc, js, err := connect(ctx, cfg, natsJS)
	if err != nil {
		return nil, err
	}

	return &subscriber{
		nc:  nc,
		js:  js,
		cfg: cfg,
	}, nil
}

func (s *subscriber) Run(ctx context.Context, handler Handler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       s.cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
		FilterSubject: s.cfg.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", s.cfg.ConsumerName, err)
	}

	msgChan := make(chan jetstream.Msg)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	logger.InfoCtx(ctx, "Consuming messages",
		zap.String("stream", s.cfg.StreamName),
		zap.String("consumer", s.cfg.ConsumerName),
		zap.String("subject", s.cfg.Subject))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgChan:
			s.handle(ctx, msg, handler)
		}
	}
}

// handle acknowledges a message according to the handler result. Messages
// that can never succeed are terminated, everything else is redelivered.
func (s *subscriber) handle(ctx context.Context, msg jetstream.Msg, handler Handler) {
	err := handler(ctx, msg.Data())

	var outcome string
	var ackErr error
	switch {
	case err == nil:
		outcome = "ack"
		ackErr = msg.Ack()
	case errors.Is(err, domain.ErrDeserialize) || domain.IsSkippable(err):
		outcome = "term"
		logger.WarnCtx(ctx, "Dropping unprocessable message", zap.String("subject", s.cfg.Subject), zap.Error(err))
		ackErr = msg.Term()
	default:
		outcome = "nak"
		logger.ErrorCtx(ctx, fmt.Errorf("failed to handle message on %s: %w", s.cfg.Subject, err))
		ackErr = msg.Nak()
	}

	if ackErr != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to %s message: %w", outcome, ackErr))
	}
	metrics.Indexer().ObserveMessageHandled(s.cfg.Subject, outcome)
}

// Close drains and closes the NATS connection
func (s *subscriber) Close() {
	closeConn(s.nc)
}
