package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

const (
	// DefaultPollInterval is how often a waiting student re-reads their row
	DefaultPollInterval = 5 * time.Second
	// DefaultDisplayDelay is the pause between seeing approval and moving on
	DefaultDisplayDelay = 1500 * time.Millisecond
	// DefaultMaxWait bounds how long a student waits for a decision
	DefaultMaxWait = 10 * time.Minute
)

// ErrNoSource is returned when both the feed and polling are disabled
var ErrNoSource = errors.New("approval watcher needs a feed or a fetcher")

// ParticipantFetcher reads a participant row
type ParticipantFetcher interface {
	Get(ctx context.Context, id string) (*models.Participant, error)
}

// ApprovalState is where a waiting student stands
type ApprovalState int

const (
	Waiting ApprovalState = iota
	Approved
	Rejected
	TimedOut
)

func (s ApprovalState) String() string {
	switch s {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	case TimedOut:
		return "timed_out"
	default:
		return "waiting"
	}
}

// ApprovalConfig wires an ApprovalWatcher. A nil Feed disables the change
// feed path and a nil Fetcher disables polling.
type ApprovalConfig struct {
	Feed         realtime.Feed
	Fetcher      ParticipantFetcher
	PollInterval time.Duration
	DisplayDelay time.Duration
	MaxWait      time.Duration

	OnApproved func(models.Participant)
	OnRejected func(models.Participant)
	OnTimeout  func()
}

func (c *ApprovalConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DisplayDelay < 0 {
		c.DisplayDelay = 0
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
}

// ApprovalWatcher waits for the teacher's decision on one participant. The
// feed and the poll race; whichever sees a terminal status first settles
// the watcher and the other becomes a no-op.
type ApprovalWatcher struct {
	cfg   ApprovalConfig
	id    string
	scope *Scope

	mu        sync.Mutex
	state     ApprovalState
	degraded  bool
	sub       *realtime.Subscription
	stopPoll  func()
	stopTimer func()
	settled   chan struct{}
}

// WatchApproval starts watching p. If p is already decided the watcher
// settles at once.
func WatchApproval(p models.Participant, cfg ApprovalConfig) (*ApprovalWatcher, error) {
	if cfg.Feed == nil && cfg.Fetcher == nil {
		return nil, ErrNoSource
	}
	cfg.defaults()

	w := &ApprovalWatcher{
		cfg:     cfg,
		id:      p.ID,
		scope:   NewScope(),
		settled: make(chan struct{}),
	}

	w.mu.Lock()
	if cfg.Feed != nil {
		sub, err := w.scope.Subscribe(cfg.Feed, models.TableParticipants, p.SessionCode, realtime.Update, w.onEvent)
		if err != nil {
			w.degraded = true
			logger.Warn("live approval updates unavailable, polling only", err, map[string]interface{}{
				"participant_id": p.ID,
			})
		}
		w.sub = sub
	}
	if cfg.Fetcher != nil {
		w.stopPoll = w.scope.Every(cfg.PollInterval, w.poll)
	}
	w.stopTimer = w.scope.After(cfg.MaxWait, w.timeout)
	w.mu.Unlock()

	if w.degraded && cfg.Fetcher == nil {
		w.Close()
		return nil, realtime.ErrConnection
	}

	w.observe(p)
	return w, nil
}

func (w *ApprovalWatcher) onEvent(ev realtime.Event) {
	p, ok := ev.Record.(models.Participant)
	if !ok || p.ID != w.id {
		return
	}
	w.observe(p)
}

func (w *ApprovalWatcher) poll(ctx context.Context) {
	p, err := w.cfg.Fetcher.Get(ctx, w.id)
	if err != nil {
		if ctx.Err() == nil {
			logger.Printf("Approval poll for %s failed: %v", w.id, err)
		}
		return
	}
	w.observe(*p)
}

// observe applies a participant row. Only the first terminal row counts.
func (w *ApprovalWatcher) observe(p models.Participant) {
	if !p.Status.IsTerminal() {
		return
	}

	w.mu.Lock()
	if w.state != Waiting {
		w.mu.Unlock()
		return
	}
	if p.Status == models.StatusApproved {
		w.state = Approved
	} else {
		w.state = Rejected
	}
	w.stopSources()
	state := w.state
	w.mu.Unlock()

	if state == Rejected {
		if w.cfg.OnRejected != nil {
			w.cfg.OnRejected(p)
		}
		close(w.settled)
		return
	}

	w.scope.After(w.cfg.DisplayDelay, func() {
		if w.cfg.OnApproved != nil {
			w.cfg.OnApproved(p)
		}
		close(w.settled)
	})
}

func (w *ApprovalWatcher) timeout() {
	w.mu.Lock()
	if w.state != Waiting {
		w.mu.Unlock()
		return
	}
	w.state = TimedOut
	w.stopSources()
	w.mu.Unlock()

	if w.cfg.OnTimeout != nil {
		w.cfg.OnTimeout()
	}
	close(w.settled)
}

// stopSources ends polling, the subscription and the wait timer. Callers
// hold w.mu.
func (w *ApprovalWatcher) stopSources() {
	if w.stopPoll != nil {
		w.stopPoll()
	}
	if w.sub != nil {
		w.sub.Unsubscribe()
	}
	if w.stopTimer != nil {
		w.stopTimer()
	}
}

// State returns the current state
func (w *ApprovalWatcher) State() ApprovalState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Degraded reports whether the feed could not be subscribed and the watcher
// relies on polling alone
func (w *ApprovalWatcher) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// Settled is closed after the decision callback has run
func (w *ApprovalWatcher) Settled() <-chan struct{} {
	return w.settled
}

// Close abandons the wait. A decision callback that had already started may
// still be running; Wait returns once it has finished.
func (w *ApprovalWatcher) Close() {
	w.scope.Close()
}

// Wait blocks until a closed watcher runs no callback. Calling it from a
// callback deadlocks.
func (w *ApprovalWatcher) Wait() {
	w.scope.Wait()
}
