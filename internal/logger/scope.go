package logger

import (
	"context"
	"strconv"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type fieldsKey struct{}

// WithBlock returns a context whose loggers carry the block being indexed.
// When sentry is enabled the block is also set as scope tags on a cloned hub.
func WithBlock(ctx context.Context, blockNumber uint64, blockHash string) context.Context {
	ctx = WithFields(ctx, zap.Uint64("block_number", blockNumber), zap.String("block_hash", blockHash))
	if sentryClient == nil {
		return ctx
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.NewHub(sentryClient, sentry.NewScope())
	} else {
		hub = hub.Clone()
	}
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("block_number", strconv.FormatUint(blockNumber, 10))
		scope.SetTag("block_hash", blockHash)
	})
	return sentry.SetHubOnContext(ctx, hub)
}

// WithFields returns a context whose loggers carry the given fields
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	existing, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}
