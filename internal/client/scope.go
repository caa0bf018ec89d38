package client

import (
	"context"
	"sync"
	"time"

	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

// Scope owns the subscriptions and timers of one view. Every callback
// registered through a scope checks that the scope is still current before
// it runs. A callback that passed that check just before Close can still be
// running when Close returns; Wait returns only once none is.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	subs    []*realtime.Subscription
	timers  []*time.Timer
	tickers []func()
	ended   []*realtime.Subscription
	wg      sync.WaitGroup
}

// NewScope creates an open scope
func NewScope() *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context is cancelled when the scope closes. Remote calls made on behalf of
// the view use it so they are abandoned with the view.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Current reports whether the scope is still open
func (s *Scope) Current() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Subscribe registers handler on feed for the life of the scope
func (s *Scope) Subscribe(feed realtime.Feed, table models.Table, filter string, kind realtime.EventKind, handler func(realtime.Event)) (*realtime.Subscription, error) {
	if !s.Current() {
		return nil, realtime.ErrClosed
	}
	sub, err := feed.Subscribe(table, filter, kind, func(ev realtime.Event) {
		if s.Current() {
			handler(ev)
		}
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Unsubscribe()
		return nil, realtime.ErrClosed
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// After runs fn once after d unless the scope closes first. The returned
// function cancels it.
func (s *Scope) After(d time.Duration, fn func()) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	s.wg.Add(1)
	t := time.AfterFunc(d, func() {
		defer s.wg.Done()
		if s.Current() {
			fn()
		}
	})
	s.timers = append(s.timers, t)
	return func() { s.stopTimer(t) }
}

// stopTimer releases the wait slot of a timer that will no longer fire
func (s *Scope) stopTimer(t *time.Timer) {
	if t.Stop() {
		s.wg.Done()
	}
}

// Every calls fn each interval until the returned stop function is called or
// the scope closes. A tick that is already running when stop is called
// finishes, but no new tick starts.
func (s *Scope) Every(interval time.Duration, fn func(ctx context.Context)) (stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	quit := make(chan struct{})
	var once sync.Once
	stop = func() { once.Do(func() { close(quit) }) }
	s.tickers = append(s.tickers, stop)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				select {
				case <-quit:
					return
				default:
				}
				if !s.Current() {
					return
				}
				fn(s.ctx)
			}
		}
	}()
	return stop
}

// Close unsubscribes everything and stops every timer. It is idempotent and
// safe to call from a scope callback. After it returns no queued event or
// pending timer reaches a callback; use Wait to outlast one already running.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs, timers, tickers := s.subs, s.timers, s.tickers
	s.subs, s.timers, s.tickers = nil, nil, nil
	s.ended = subs
	s.mu.Unlock()

	s.cancel()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, t := range timers {
		s.stopTimer(t)
	}
	for _, stop := range tickers {
		stop()
	}
}

// Wait blocks until no callback of a closed scope is running: pollers and
// timers have returned and every subscription's delivery goroutine has
// exited. Calling it from a scope callback deadlocks.
func (s *Scope) Wait() {
	s.mu.Lock()
	subs := s.ended
	s.mu.Unlock()

	for _, sub := range subs {
		<-sub.Done()
	}
	s.wg.Wait()
}
