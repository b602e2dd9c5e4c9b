package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/adapter"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string

	// Consumer settings, used by subscribers only
	ConsumerName string
	AckWait      time.Duration
	MaxDeliver   int
}

// connect opens the NATS connection and makes sure the stream carrying
// cfg.Subject exists
func connect(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (adapter.NatsConn, adapter.JetStream, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(fmt.Errorf("disconnected from NATS: %w", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.Subject},
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	return nc, js, nil
}

// closeConn drains the connection, falling back to a hard close
func closeConn(nc adapter.NatsConn) {
	if nc == nil {
		return
	}

	if err := nc.Drain(); err != nil {
		logger.Warn("Failed to drain NATS connection", zap.Error(err))
		nc.Close()
	}
}
