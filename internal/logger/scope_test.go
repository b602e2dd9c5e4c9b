package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithBlock(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := log
	log = zap.New(core)
	t.Cleanup(func() { log = prev })

	ctx := WithBlock(context.Background(), 42, "0xabc")
	ctx = WithFields(ctx, zap.String("tx_hash", "0xdef"))
	InfoCtx(ctx, "applied")
	Info("no scope")

	entries := logs.AllUntimed()
	assert.Len(t, entries, 2)
	scoped := entries[0].ContextMap()
	assert.Equal(t, uint64(42), scoped["block_number"])
	assert.Equal(t, "0xabc", scoped["block_hash"])
	assert.Equal(t, "0xdef", scoped["tx_hash"])
	assert.NotContains(t, entries[1].ContextMap(), "block_number")
}

func TestWithFields_DoesNotShareParentSlice(t *testing.T) {
	parent := WithFields(context.Background(), zap.String("a", "1"))
	left := WithFields(parent, zap.String("b", "2"))
	right := WithFields(parent, zap.String("c", "3"))

	leftFields := left.Value(fieldsKey{}).([]zap.Field)
	rightFields := right.Value(fieldsKey{}).([]zap.Field)
	assert.Equal(t, "b", leftFields[1].Key)
	assert.Equal(t, "c", rightFields[1].Key)
	assert.Len(t, parent.Value(fieldsKey{}).([]zap.Field), 1)
}
