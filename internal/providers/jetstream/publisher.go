package jetstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
)

// Publisher announces committed blocks to downstream consumers
//
//go:generate mockgen -source=publisher.go -destination=../../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishBlockIndexed publishes a notification for a committed block
	PublishBlockIndexed(ctx context.Context, event domain.BlockIndexed) error

	// Close closes the connection
	Close()
}

type publisher struct {
	nc      adapter.NatsConn
	js      adapter.JetStream
	subject string
}

// NewPublisher connects to NATS and makes sure the stream exists
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (Publisher, error) {
	nc, js, err := connect(ctx, cfg, natsJS)
	if err != nil {
		return nil, err
	}

	return &publisher{
		nc:      nc,
		js:      js,
		subject: cfg.Subject,
	}, nil
}

// PublishBlockIndexed publishes a block notification. The block number is
// used as the message id so that retried publishes are deduplicated.
func (p *publisher) PublishBlockIndexed(ctx context.Context, event domain.BlockIndexed) error {
	logger.DebugCtx(ctx, "Publishing block indexed event",
		zap.Uint64("block_number", event.BlockNumber),
		zap.Int("num_changes", event.NumChanges))

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(fmt.Sprintf("block-%d", event.BlockNumber)))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close drains and closes the NATS connection
func (p *publisher) Close() {
	closeConn(p.nc)
}
