package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIndexerMetrics(t *testing.T) {
	m := Indexer()
	assert.Same(t, m, Indexer())

	m.ObserveTransactionSkipped("")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactionsSkipped.WithLabelValues("unknown")))

	m.ObserveRecordsCommitted("Track", 3)
	m.ObserveRecordsCommitted("Track", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsCommitted.WithLabelValues("Track")))

	m.ObserveBlockIndexed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blocksIndexed))

	m.ObserveListenerError("u")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listenerErrors.WithLabelValues("u")))

	m.ObserveMessageHandled("plays.recorded", "ack")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesHandled.WithLabelValues("plays.recorded", "ack")))
}

func TestIndexerMetrics_NilSafe(t *testing.T) {
	var m *IndexerMetrics
	assert.NotPanics(t, func() {
		m.ObserveTransactionSkipped("validation")
		m.ObserveRecordsCommitted("Track", 1)
		m.ObserveBlockIndexed()
		m.ObserveEventsProcessed("track_upload", 1)
		m.ObserveListenerError("u")
		m.ObserveJobSkipped("challenge-events")
		m.ObserveMessageHandled("plays.recorded", "nak")
	})
}
