package notify

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// StatusChange is pushed for every order status transition. Delivery is
// at-least-once; consumers de-duplicate by (order id, new status).
type StatusChange struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 64

// Hub fans status changes out to subscribers. Publish never blocks the
// terminal transition that produced the event: a subscriber with a full
// buffer gets the event delivered from a separate goroutine.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan StatusChange]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan StatusChange]struct{})}
}

// Subscribe registers a new consumer channel.
func (h *Hub) Subscribe() chan StatusChange {
	ch := make(chan StatusChange, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component":   "NotifyHub",
		"subscribers": h.Subscribers(),
	}).Debug("Subscriber added")

	return ch
}

// Unsubscribe removes a consumer channel and closes it.
func (h *Hub) Unsubscribe(ch chan StatusChange) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish pushes a status change to every subscriber.
func (h *Hub) Publish(change StatusChange) {
	if change.At.IsZero() {
		change.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- change:
		default:
			// Slow consumer; deliver without holding up the publisher.
			go func(c chan StatusChange) {
				defer func() { recover() }()
				c <- change
			}(ch)
		}
	}

	logger.WithFields(map[string]interface{}{
		"component":  "NotifyHub",
		"order_id":   change.OrderID,
		"new_status": change.NewStatus,
	}).Debug("Status change published")
}

// Subscribers reports the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
