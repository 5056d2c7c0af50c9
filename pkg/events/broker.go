// Package events carries per-conversation status updates from the pipeline
// to streaming subscribers. Delivery is best effort: the stream is
// observational and must never block or fail a turn.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/models"
)

// subscriberBuffer is how many events a slow subscriber can lag before
// updates are dropped for it.
const subscriberBuffer = 16

// Broker fans out status events per conversation.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[chan models.StatusEvent]struct{}
	logger *zap.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]map[chan models.StatusEvent]struct{}),
		logger: logger.Named("events"),
	}
}

// Subscribe registers a listener for one conversation. The returned cancel
// function must be called when the listener goes away.
func (b *Broker) Subscribe(conversationID uuid.UUID) (<-chan models.StatusEvent, func()) {
	ch := make(chan models.StatusEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[chan models.StatusEvent]struct{})
	}
	b.subs[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[conversationID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, conversationID)
			}
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// Publish sends an event to every subscriber of the conversation. A full
// subscriber buffer drops the event for that subscriber only.
func (b *Broker) Publish(conversationID uuid.UUID, message string, changed bool) {
	event := models.StatusEvent{
		Message:   message,
		Changed:   changed,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[conversationID] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropping status event for slow subscriber",
				zap.String("conversation_id", conversationID.String()))
		}
	}
}

// SubscriberCount reports how many listeners a conversation has.
func (b *Broker) SubscriberCount(conversationID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
