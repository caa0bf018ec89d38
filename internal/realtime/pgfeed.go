package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"classpulse/internal/logger"
	"classpulse/internal/models"
)

// DefaultChannel is the NOTIFY channel changes are broadcast on
const DefaultChannel = "classpulse_changes"

// Postgres rejects NOTIFY payloads of 8000 bytes or more
const maxNotifyPayload = 7999

var ErrPayloadTooLarge = errors.New("change too large for NOTIFY")

// PGFeed shares one feed between server processes through Postgres
// LISTEN/NOTIFY. Published changes go out with pg_notify and come back through
// the listener, so every process delivers them through the same local hub.
type PGFeed struct {
	db       *sql.DB
	listener *pq.Listener
	channel  string
	hub      *Hub

	connected atomic.Bool
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPGFeed opens a listener on channel using dsn. db is used to publish.
func NewPGFeed(dsn string, db *sql.DB, channel string, queueSize int) (*PGFeed, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	f := &PGFeed{
		db:      db,
		channel: channel,
		hub:     NewHub(queueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	f.listener = pq.NewListener(dsn, time.Second, time.Minute, f.onListenerEvent)
	if err := f.listener.Listen(channel); err != nil {
		f.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	f.connected.Store(true)

	go f.loop()
	logger.Printf("Change feed listening on Postgres channel %s", channel)
	return f, nil
}

func (f *PGFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		f.connected.Store(true)
	case pq.ListenerEventDisconnected:
		f.connected.Store(false)
		logger.Warn("change feed listener disconnected", err)
	case pq.ListenerEventConnectionAttemptFailed:
		f.connected.Store(false)
		logger.Warn("change feed reconnect failed", err)
	}
}

func (f *PGFeed) loop() {
	defer close(f.done)
	for {
		select {
		case <-f.quit:
			return
		case n := <-f.listener.Notify:
			// nil after a reconnect; anything sent while down is gone
			if n == nil {
				continue
			}
			f.relay(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := f.listener.Ping(); err != nil {
					logger.Warn("change feed ping failed", err)
				}
			}()
		}
	}
}

func (f *PGFeed) relay(payload string) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		f.hub.rejected.Add(1)
		logger.Warn("rejected notification", fmt.Errorf("%w: %v", ErrUnexpectedShape, err))
		return
	}
	// Publish logs and counts decode failures itself
	_ = f.hub.Publish(context.Background(), change)
}

// Publish sends the change through pg_notify
func (f *PGFeed) Publish(ctx context.Context, change Change) error {
	select {
	case <-f.quit:
		return ErrClosed
	default:
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("%w: %s row is %d bytes", ErrPayloadTooLarge, change.Table, len(payload))
	}

	if _, err := f.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", f.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify %s: %w", f.channel, err)
	}
	return nil
}

// Subscribe fails with ErrConnection while the listener is disconnected
func (f *PGFeed) Subscribe(table models.Table, filter string, kind EventKind, handler func(Event)) (*Subscription, error) {
	if !f.connected.Load() {
		return nil, ErrConnection
	}
	return f.hub.Subscribe(table, filter, kind, handler)
}

// Connected reports whether the listener currently holds a connection
func (f *PGFeed) Connected() bool {
	return f.connected.Load()
}

// Stats returns counters of the local hub
func (f *PGFeed) Stats() Stats {
	return f.hub.Stats()
}

// Close stops listening and unsubscribes local subscribers
func (f *PGFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.quit)
		<-f.done
		err = f.listener.Close()
		f.hub.Close()
	})
	return err
}
