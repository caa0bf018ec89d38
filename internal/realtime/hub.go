package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"classpulse/internal/logger"
	"classpulse/internal/models"
)

// Feed publishes committed writes and delivers them to subscribers
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(table models.Table, filter string, kind EventKind, handler func(Event)) (*Subscription, error)
}

// Stats is a snapshot of feed activity
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Rejected    uint64 `json:"rejected"`
}

// Hub is the in-process feed. Each subscription gets its own delivery
// goroutine so a slow handler only delays itself.
type Hub struct {
	queueSize int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
}

// NewHub creates a hub whose subscriptions buffer up to queueSize events
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscription),
	}
}

// Subscribe registers handler for changes to table whose key equals filter.
// An empty filter receives every row of the table.
func (h *Hub) Subscribe(table models.Table, filter string, kind EventKind, handler func(Event)) (*Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if handler == nil {
		return nil, errors.New("subscription handler is required")
	}
	if kind == "" {
		kind = Any
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrConnection
	}

	h.nextID++
	sub := newSubscription(h.nextID, table, filter, kind, h.queueSize, handler, h.remove)
	h.subs[sub.id] = sub
	go sub.run()
	return sub, nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

// Publish decodes the change and queues it on every matching subscription.
// Malformed changes are logged and dropped.
func (h *Hub) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	ev, err := Decode(change)
	if err != nil {
		h.rejected.Add(1)
		logger.Warn("rejected change", err, map[string]interface{}{"table": string(change.Table)})
		return err
	}
	h.published.Add(1)
	h.dispatch(ev, change)
	return nil
}

func (h *Hub) dispatch(ev Event, change Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.matches(change) {
			continue
		}
		if sub.offer(ev) {
			h.delivered.Add(1)
			continue
		}
		h.dropped.Add(1)
		logger.Warn("dropping change", ErrQueueFull, map[string]interface{}{
			"table":  string(change.Table),
			"filter": sub.filter,
		})
	}
}

// Stats returns current counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return Stats{
		Subscribers: n,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Rejected:    h.rejected.Load(),
	}
}

// Close unsubscribes everyone. Later Subscribe calls fail with ErrConnection.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

// Emit encodes rec and publishes it on feed
func Emit(ctx context.Context, feed Feed, kind EventKind, rec Record) error {
	change, err := NewChange(kind, rec)
	if err != nil {
		return err
	}
	return feed.Publish(ctx, change)
}
