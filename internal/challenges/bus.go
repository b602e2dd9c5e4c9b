package challenges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metrics"
	"github.com/feral-file/ff-entity-indexer/internal/queue"
)

//go:generate mockgen -source=bus.go -destination=../mocks/challenge_listener.go -package=mocks -mock_names=Listener=MockChallengeListener

// Listener consumes batches of one event type
type Listener interface {
	// ChallengeID identifies the listener in logs and metrics
	ChallengeID() string
	// Process handles every event of one type popped in a single tick
	Process(ctx context.Context, events []domain.ChallengeEvent) error
}

// Bus carries challenge events from the indexer to challenge listeners
// through a durable queue. Producers buffer with Dispatch and push with
// Flush; a single consumer drains the queue with ProcessEvents.
type Bus struct {
	queue queue.Queue
	key   string

	mu      sync.Mutex
	pending []domain.ChallengeEvent

	listenersMu sync.RWMutex
	listeners   map[domain.ChallengeEventType][]Listener
}

// NewBus creates a bus over the durable queue list named key
func NewBus(q queue.Queue, key string) *Bus {
	return &Bus{
		queue:     q,
		key:       key,
		listeners: make(map[domain.ChallengeEventType][]Listener),
	}
}

// RegisterListener subscribes l to every event of eventType
func (b *Bus) RegisterListener(eventType domain.ChallengeEventType, l Listener) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], l)
}

// Dispatch buffers an event until the next Flush. Malformed events are dropped.
func (b *Bus) Dispatch(eventType domain.ChallengeEventType, blockNumber uint64, blockTime time.Time, userID int64, extra map[string]any) {
	e, ok := newEvent(eventType, blockNumber, blockTime, userID, extra)
	if !ok {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
}

// Flush pushes every buffered event to the durable queue. Events stay
// buffered when the push fails.
func (b *Bus) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.push(ctx, b.pending); err != nil {
		return err
	}
	b.pending = nil
	return nil
}

func (b *Bus) push(ctx context.Context, events []domain.ChallengeEvent) error {
	if len(events) == 0 {
		return nil
	}

	values := make([]string, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e.ToMessage())
		if err != nil {
			logger.WarnCtx(ctx, "Dropping unserializable challenge event",
				zap.String("event", string(e.EventType)),
				zap.Int64("user_id", e.UserID),
				zap.Error(err))
			continue
		}
		values = append(values, string(data))
	}

	if err := b.queue.Push(ctx, b.key, values...); err != nil {
		return fmt.Errorf("failed to push %d challenge events: %w", len(values), err)
	}
	return nil
}

// UseScopedDispatchQueue runs fn with a private batch and flushes the batch
// exactly once when fn returns, fails or panics. Events of a failed flush are
// kept on the bus for its next Flush.
func (b *Bus) UseScopedDispatchQueue(ctx context.Context, fn func(batch *Batch) error) (err error) {
	batch := &Batch{bus: b}
	defer func() {
		flushErr := batch.Flush(ctx)
		if r := recover(); r != nil {
			panic(r)
		}
		err = errors.Join(err, flushErr)
	}()
	return fn(batch)
}

// ProcessEvents pops up to maxEvents events from the head of the queue and
// hands every event type to its listeners as one batch. It returns the
// number of events consumed and whether an error occurred. When the queue
// cannot be read or decoded, nothing is removed and -1 is returned.
func (b *Bus) ProcessEvents(ctx context.Context, maxEvents int) (int, bool) {
	if maxEvents <= 0 {
		return 0, false
	}

	raw, err := b.queue.Range(ctx, b.key, 0, int64(maxEvents-1))
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to read challenge events: %w", err))
		return -1, true
	}
	if len(raw) == 0 {
		return 0, false
	}

	events, err := decodeEvents(raw)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.Int("batch_size", len(raw)))
		return -1, true
	}

	var order []domain.ChallengeEventType
	byType := make(map[domain.ChallengeEventType][]domain.ChallengeEvent)
	for _, e := range events {
		if _, ok := byType[e.EventType]; !ok {
			order = append(order, e.EventType)
		}
		byType[e.EventType] = append(byType[e.EventType], e)
	}

	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()

	failed := false
	for _, eventType := range order {
		batch := byType[eventType]
		for _, l := range b.listeners[eventType] {
			if err := l.Process(ctx, batch); err != nil {
				failed = true
				metrics.Indexer().ObserveListenerError(l.ChallengeID())
				logger.ErrorCtx(ctx, fmt.Errorf("challenge listener failed: %w", err),
					zap.String("challenge_id", l.ChallengeID()),
					zap.String("event", string(eventType)),
					zap.Int("events", len(batch)))
			}
		}
		metrics.Indexer().ObserveEventsProcessed(string(eventType), len(batch))
	}

	if err := b.queue.Trim(ctx, b.key, int64(len(raw)), -1); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to trim challenge events: %w", err))
		return len(raw), true
	}
	return len(raw), failed
}

func decodeEvents(raw []string) ([]domain.ChallengeEvent, error) {
	events := make([]domain.ChallengeEvent, 0, len(raw))
	for i, r := range raw {
		var msg domain.ChallengeEventMessage
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("%w: message %d: %w", domain.ErrDeserialize, i, err)
		}
		if msg.Event == "" {
			return nil, fmt.Errorf("%w: message %d has no event type", domain.ErrDeserialize, i)
		}
		events = append(events, msg.ToEvent())
	}
	return events, nil
}

func newEvent(eventType domain.ChallengeEventType, blockNumber uint64, blockTime time.Time, userID int64, extra map[string]any) (domain.ChallengeEvent, bool) {
	if eventType == "" || userID <= 0 {
		logger.Warn("Dropping malformed challenge event",
			zap.String("event", string(eventType)),
			zap.Int64("user_id", userID))
		return domain.ChallengeEvent{}, false
	}
	return domain.ChallengeEvent{
		EventType:     eventType,
		UserID:        userID,
		BlockNumber:   blockNumber,
		BlockDatetime: blockTime,
		Extra:         extra,
	}, true
}

// requeue keeps events whose push failed until the next Flush
func (b *Bus) requeue(events []domain.ChallengeEvent) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, events...)
	b.mu.Unlock()
}

// Batch is a scoped dispatch queue. It is flushed once by UseScopedDispatchQueue.
type Batch struct {
	bus *Bus

	mu     sync.Mutex
	events []domain.ChallengeEvent
	once   sync.Once
}

// Dispatch buffers an event in the batch. Malformed events are dropped.
func (bt *Batch) Dispatch(eventType domain.ChallengeEventType, blockNumber uint64, blockTime time.Time, userID int64, extra map[string]any) {
	e, ok := newEvent(eventType, blockNumber, blockTime, userID, extra)
	if !ok {
		return
	}
	bt.mu.Lock()
	bt.events = append(bt.events, e)
	bt.mu.Unlock()
}

// Len returns the number of buffered events
func (bt *Batch) Len() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return len(bt.events)
}

// Flush pushes the batch to the durable queue. Only the first call pushes;
// when it fails the events move to the bus pending list.
func (bt *Batch) Flush(ctx context.Context) error {
	var err error
	bt.once.Do(func() {
		bt.mu.Lock()
		defer bt.mu.Unlock()
		events := bt.events
		bt.events = nil
		if err = bt.bus.push(ctx, events); err != nil {
			bt.bus.requeue(events)
		}
	})
	return err
}
