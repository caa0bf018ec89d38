package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"classpulse/internal/client"
	"classpulse/internal/credentials"
	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

const (
	streamBuffer    = 32
	streamHeartbeat = 25 * time.Second
)

// StatsReporter is a feed that reports its activity
type StatsReporter interface {
	Stats() realtime.Stats
}

// Pinger checks the database connection
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StreamHandler bridges the change feed to Server-Sent Events
type StreamHandler struct {
	feed    realtime.Feed
	db      Pinger
	timings clientTimings
}

// clientTimings tells browser clients how to run the approval fallback
type clientTimings struct {
	PollIntervalMS    int64 `json:"poll_interval_ms"`
	DisplayDelayMS    int64 `json:"display_delay_ms"`
	ApprovalMaxWaitMS int64 `json:"approval_max_wait_ms"`
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(feed realtime.Feed, db Pinger) *StreamHandler {
	h := &StreamHandler{feed: feed, db: db}
	return h.WithClientTimings(client.DefaultPollInterval, client.DefaultMaxWait)
}

// WithClientTimings sets the poll interval and approval wait handed to clients
func (h *StreamHandler) WithClientTimings(pollInterval, maxWait time.Duration) *StreamHandler {
	if pollInterval <= 0 {
		pollInterval = client.DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = client.DefaultMaxWait
	}
	h.timings = clientTimings{
		PollIntervalMS:    pollInterval.Milliseconds(),
		DisplayDelayMS:    client.DefaultDisplayDelay.Milliseconds(),
		ApprovalMaxWaitMS: maxWait.Milliseconds(),
	}
	return h
}

// ClientConfig returns the timings clients use while waiting for approval
func (h *StreamHandler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.timings)
}

type streamEvent struct {
	Table       models.Table       `json:"table"`
	Kind        realtime.EventKind `json:"kind"`
	Key         string             `json:"key"`
	Record      realtime.Record    `json:"record"`
	CommittedAt time.Time          `json:"committed_at"`
}

// Stream serves GET /api/stream/{table}/{filter}?event=INSERT|UPDATE|*.
// A feed that cannot subscribe is answered with 503 so the client knows it is
// not live and can fall back to polling.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	table := models.Table(r.PathValue("table"))
	if !table.Valid() {
		respondWithError(w, http.StatusNotFound, "Unknown table", "", nil)
		return
	}
	filter := r.PathValue("filter")
	if keyedBySession(table) {
		filter = credentials.NormalizeCode(filter)
	}
	kind, err := realtime.ParseEventKind(r.URL.Query().Get("event"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported", "", nil)
		return
	}

	events := make(chan realtime.Event, streamBuffer)
	ctx := r.Context()
	sub, err := h.feed.Subscribe(table, filter, kind, func(ev realtime.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		logger.Warn("stream subscription failed", err, map[string]interface{}{"table": string(table), "filter": filter})
		respondWithError(w, http.StatusServiceUnavailable, ErrFeedUnavailable, "", nil)
		return
	}
	defer sub.Unsubscribe()

	// Streams outlive the server's write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Printf("Stream write deadline not cleared: %v", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(streamEvent{
				Table:       ev.Table,
				Kind:        ev.Kind,
				Key:         ev.Key,
				Record:      ev.Record,
				CommittedAt: ev.CommittedAt,
			})
			if err != nil {
				logger.Error("failed to encode stream event", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

// keyedBySession reports whether rows of table are filtered by session code
func keyedBySession(table models.Table) bool {
	switch table {
	case models.TableSessions, models.TableParticipants, models.TableFeedback, models.TableTeacherMessages:
		return true
	}
	return false
}

type healthResponse struct {
	Status   string          `json:"status"`
	Database string          `json:"database"`
	Feed     *realtime.Stats `json:"feed,omitempty"`
}

// Health reports database reachability and feed activity
func (h *StreamHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			logger.Warn("health check database ping failed", err)
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if reporter, ok := h.feed.(StatsReporter); ok {
		stats := reporter.Stats()
		resp.Feed = &stats
	}
	respondWithJSON(w, status, resp)
}
