package api

import (
	"sync"
	"time"
)

type userEvent struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// userEventBroker fans notifications out to a user's open event streams. It
// implements service.Publisher.
type userEventBroker struct {
	mu   sync.RWMutex
	subs map[int64]map[chan userEvent]struct{}
}

func newUserEventBroker() *userEventBroker {
	return &userEventBroker{
		subs: make(map[int64]map[chan userEvent]struct{}),
	}
}

func (b *userEventBroker) Subscribe(userID int64) (<-chan userEvent, func()) {
	ch := make(chan userEvent, 32)
	b.mu.Lock()
	if _, ok := b.subs[userID]; !ok {
		b.subs[userID] = make(map[chan userEvent]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if subs, ok := b.subs[userID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, userID)
			}
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *userEventBroker) Publish(userID int64, eventType string, payload any) {
	if userID <= 0 || eventType == "" {
		return
	}
	b.mu.RLock()
	subs := b.subs[userID]
	channels := make([]chan userEvent, 0, len(subs))
	for ch := range subs {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()
	if len(channels) == 0 {
		return
	}

	event := userEvent{
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	for _, ch := range channels {
		select {
		case ch <- event:
		default:
			// Slow consumer; the notification is still stored.
		}
	}
}

// streams counts open subscriptions across all users.
func (b *userEventBroker) streams() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
