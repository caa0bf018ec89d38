package realtime

import (
	"fmt"
	"sync"

	"classpulse/internal/logger"
	"classpulse/internal/models"
)

// DefaultQueueSize bounds the events buffered per subscription
const DefaultQueueSize = 64

// Subscription is one live listener. Events are delivered in publish order on
// a goroutine owned by the subscription.
type Subscription struct {
	id      uint64
	table   models.Table
	filter  string
	kind    EventKind
	handler func(Event)
	remove  func(*Subscription)

	queue chan Event
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	closed bool
}

func newSubscription(id uint64, table models.Table, filter string, kind EventKind, queueSize int, handler func(Event), remove func(*Subscription)) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Subscription{
		id:      id,
		table:   table,
		filter:  filter,
		kind:    kind,
		handler: handler,
		remove:  remove,
		queue:   make(chan Event, queueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Table returns the subscribed table
func (s *Subscription) Table() models.Table { return s.table }

// Filter returns the filter key, empty for all rows
func (s *Subscription) Filter() string { return s.filter }

// Unsubscribe stops delivery and discards queued events. It is safe to call
// more than once and from inside the subscription's own handler. It does not
// wait: an invocation already under way, or one that had passed its check
// when Unsubscribe ran, may still be executing after it returns. Callers
// outside the handler that need the handler quiet wait on Done.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.quit)
		if s.remove != nil {
			s.remove(s)
		}
	})
}

// Done is closed when the delivery goroutine has exited. After an
// Unsubscribe, once Done is closed the handler is not running and never runs
// again. Waiting on it from the handler itself blocks forever.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) matches(c Change) bool {
	if s.table != c.Table || !s.kind.Matches(c.Kind) {
		return false
	}
	return s.filter == "" || s.filter == c.Key
}

// offer queues ev without blocking and reports whether it was accepted
func (s *Subscription) offer(ev Event) bool {
	select {
	case <-s.quit:
		return true
	default:
	}
	select {
	case s.queue <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.queue:
			if !s.active() {
				return
			}
			s.deliver(ev)
		}
	}
}

func (s *Subscription) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Subscription) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change handler panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"table":  string(s.table),
				"filter": s.filter,
			})
		}
	}()
	s.handler(ev)
}
