package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

// DefaultStreamLimit bounds the items a SessionStream keeps
const DefaultStreamLimit = 200

// StreamItem is one row shown on the teacher dashboard
type StreamItem struct {
	Table     models.Table
	ID        string
	CreatedAt time.Time
	Record    realtime.Record
}

// SessionStream collects a session's feedback and messages, and when a
// presentation is running its pacing signals and questions, newest first.
// Rows are replaced by id so an answered question updates in place.
type SessionStream struct {
	scope *Scope
	limit int

	mu    sync.Mutex
	items []StreamItem
	index map[string]int
}

// NewSessionStream subscribes to the dashboard tables of sessionCode.
// presentationID may be empty. It fails with the first subscription error
// rather than showing a dashboard that is not live.
func NewSessionStream(feed realtime.Feed, sessionCode, presentationID string, limit int) (*SessionStream, error) {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	s := &SessionStream{scope: NewScope(), limit: limit, index: make(map[string]int)}

	type topic struct {
		table  models.Table
		filter string
		kind   realtime.EventKind
	}
	topics := []topic{
		{models.TableFeedback, sessionCode, realtime.Insert},
		{models.TableTeacherMessages, sessionCode, realtime.Insert},
	}
	if presentationID != "" {
		topics = append(topics,
			topic{models.TableTeachingFeedback, presentationID, realtime.Insert},
			topic{models.TableTeachingQuestions, presentationID, realtime.Any},
		)
	}

	for _, t := range topics {
		if _, err := s.scope.Subscribe(feed, t.table, t.filter, t.kind, s.onEvent); err != nil {
			s.scope.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", t.table, err)
		}
	}
	return s, nil
}

func (s *SessionStream) onEvent(ev realtime.Event) {
	s.Add(ev.Record)
}

// Add inserts or replaces rec. It is also used to seed the stream from a
// list read before subscribing.
func (s *SessionStream) Add(recs ...realtime.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		item, ok := streamItem(rec)
		if !ok {
			continue
		}
		key := string(item.Table) + "/" + item.ID
		if i, seen := s.index[key]; seen {
			s.items[i] = item
			continue
		}
		s.items = append(s.items, item)
		s.index[key] = len(s.items) - 1
	}
	s.trim()
}

// trim sorts newest first and drops the oldest beyond the limit
func (s *SessionStream) trim() {
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.After(s.items[j].CreatedAt)
	})
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[string(item.Table)+"/"+item.ID] = i
	}
}

func streamItem(rec realtime.Record) (StreamItem, bool) {
	item := StreamItem{Table: rec.TableName(), Record: rec}
	switch r := rec.(type) {
	case models.Feedback:
		item.ID, item.CreatedAt = r.ID, r.CreatedAt
	case models.TeacherMessage:
		item.ID, item.CreatedAt = r.ID, r.CreatedAt
	case models.TeachingFeedback:
		item.ID, item.CreatedAt = r.ID, r.CreatedAt
	case models.TeachingQuestion:
		item.ID, item.CreatedAt = r.ID, r.CreatedAt
	default:
		return StreamItem{}, false
	}
	return item, true
}

// Items returns a snapshot, newest first
func (s *SessionStream) Items() []StreamItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StreamItem(nil), s.items...)
}

// Close stops the stream
func (s *SessionStream) Close() {
	s.scope.Close()
}
