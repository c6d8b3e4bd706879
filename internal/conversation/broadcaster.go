// ABOUTME: In-memory fan-out of store change notifications
// ABOUTME: UI collaborators subscribe, re-read the store, and render

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// changeBufferSize is the channel buffer for each subscriber.
const changeBufferSize = 64

// ChangeKind classifies a store change notification.
type ChangeKind string

const (
	// ChangeMessage: a message was inserted, promoted, or finalized.
	ChangeMessage ChangeKind = "message"
	// ChangeVersion: a response version was appended or selected.
	ChangeVersion ChangeKind = "version"
	// ChangeEdit: a message's content was replaced in place.
	ChangeEdit ChangeKind = "edit"
	// ChangeRemove: an exchange or standalone message was removed.
	ChangeRemove ChangeKind = "remove"
	// ChangeReset: the conversation was cleared or rebuilt.
	ChangeReset ChangeKind = "reset"
	// ChangeConnection: the transport connection state changed.
	ChangeConnection ChangeKind = "connection"
	// ChangeOperationFailed: a pending operation failed and was rolled back.
	ChangeOperationFailed ChangeKind = "operation_failed"
)

// Change describes one store mutation. Subscribers re-read the store for the
// full picture; the change carries just enough to target a partial render.
type Change struct {
	Kind      ChangeKind
	MessageID string
	ParentID  string
	Detail    string // human-readable context for failures and notices
}

// Broadcaster provides in-memory pub/sub for store changes. The reconciler
// and coordinator publish; rendering collaborators subscribe. Publishing
// never blocks: changes are dropped for subscribers whose channels are full.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Change
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for the default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and subscription
// id. The subscription is cleaned up automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, changeBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a change to every subscriber without blocking.
func (b *Broadcaster) Publish(c Change) {
	b.mu.RLock()
	targets := make([]chan Change, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- c:
		default:
			b.logger.Debug("dropped change for slow subscriber", "kind", c.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
}
