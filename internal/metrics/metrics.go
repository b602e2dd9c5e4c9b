package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerMetrics holds the counters of the entity indexer and the challenge worker
type IndexerMetrics struct {
	transactionsSkipped *prometheus.CounterVec
	recordsCommitted    *prometheus.CounterVec
	blocksIndexed       prometheus.Counter
	eventsProcessed     *prometheus.CounterVec
	listenerErrors      *prometheus.CounterVec
	jobSkipped          *prometheus.CounterVec
	messagesHandled     *prometheus.CounterVec
}

var (
	indexerOnce     sync.Once
	indexerRegistry *IndexerMetrics
)

// Indexer returns the process wide metrics, registering them on first use
func Indexer() *IndexerMetrics {
	indexerOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			transactionsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entity_indexer_transactions_skipped_total",
				Help: "Number of transactions skipped by the entity manager, by reason.",
			}, []string{"reason"}),
			recordsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entity_indexer_records_committed_total",
				Help: "Number of entity versions committed, by entity type.",
			}, []string{"entity_type"}),
			blocksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "entity_indexer_blocks_indexed_total",
				Help: "Number of blocks committed by the entity manager.",
			}),
			eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "challenge_events_processed_total",
				Help: "Number of challenge events popped from the queue, by event type.",
			}, []string{"event"}),
			listenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "challenge_listener_errors_total",
				Help: "Number of failed challenge manager batches, by challenge id.",
			}, []string{"challenge_id"}),
			jobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "scheduler_job_skipped_total",
				Help: "Number of scheduled runs skipped because another instance held the lock.",
			}, []string{"job"}),
			messagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nats_messages_handled_total",
				Help: "Number of consumed NATS messages, by subject and outcome (ack, nak, term).",
			}, []string{"subject", "outcome"}),
		}
		prometheus.MustRegister(
			indexerRegistry.transactionsSkipped,
			indexerRegistry.recordsCommitted,
			indexerRegistry.blocksIndexed,
			indexerRegistry.eventsProcessed,
			indexerRegistry.listenerErrors,
			indexerRegistry.jobSkipped,
			indexerRegistry.messagesHandled,
		)
	})
	return indexerRegistry
}

func (m *IndexerMetrics) ObserveTransactionSkipped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.transactionsSkipped.WithLabelValues(reason).Inc()
}

func (m *IndexerMetrics) ObserveRecordsCommitted(entityType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsCommitted.WithLabelValues(entityType).Add(float64(count))
}

func (m *IndexerMetrics) ObserveBlockIndexed() {
	if m == nil {
		return
	}
	m.blocksIndexed.Inc()
}

func (m *IndexerMetrics) ObserveEventsProcessed(event string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.eventsProcessed.WithLabelValues(event).Add(float64(count))
}

func (m *IndexerMetrics) ObserveListenerError(challengeID string) {
	if m == nil {
		return
	}
	m.listenerErrors.WithLabelValues(challengeID).Inc()
}

func (m *IndexerMetrics) ObserveJobSkipped(job string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job).Inc()
}

func (m *IndexerMetrics) ObserveMessageHandled(subject, outcome string) {
	if m == nil {
		return
	}
	m.messagesHandled.WithLabelValues(subject, outcome).Inc()
}
