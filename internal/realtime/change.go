// Package realtime implements the change feed: rows written to the store are
// published as changes and fanned out to subscribers filtered by table,
// filter key and event kind.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classpulse/internal/models"
)

var (
	// ErrConnection is returned by Subscribe when the feed channel cannot be
	// established. Callers decide whether to fall back to polling.
	ErrConnection = errors.New("change feed unavailable")

	// ErrUnexpectedShape marks a change whose table or row cannot be decoded
	ErrUnexpectedShape = errors.New("unexpected change shape")

	// ErrClosed is returned by Publish after the feed was closed
	ErrClosed = errors.New("change feed closed")

	// ErrQueueFull is logged when a slow subscriber loses an event
	ErrQueueFull = errors.New("subscriber queue full")
)

// EventKind is the kind of write that produced a change
type EventKind string

const (
	Insert EventKind = "INSERT"
	Update EventKind = "UPDATE"
	// Any matches both inserts and updates when subscribing
	Any EventKind = "*"
)

// Matches reports whether a subscription for k receives a change of kind other
func (k EventKind) Matches(other EventKind) bool {
	return k == Any || k == other
}

// ParseEventKind accepts INSERT, UPDATE, * or an empty string (Any)
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case Insert, Update, Any:
		return EventKind(s), nil
	case "":
		return Any, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Record is a row that can travel through the feed
type Record interface {
	TableName() models.Table
	FilterKey() string
}

// Change is the wire form of a committed write
type Change struct {
	Table       models.Table    `json:"table"`
	Kind        EventKind       `json:"kind"`
	Key         string          `json:"key"`
	Row         json.RawMessage `json:"row"`
	CommittedAt time.Time       `json:"committed_at"`
}

// Event is a decoded change as delivered to a subscriber
type Event struct {
	Table       models.Table
	Kind        EventKind
	Key         string
	Record      Record
	CommittedAt time.Time
}

// NewChange encodes rec as a change of the given kind
func NewChange(kind EventKind, rec Record) (Change, error) {
	if kind != Insert && kind != Update {
		return Change{}, fmt.Errorf("cannot publish change of kind %q", kind)
	}
	row, err := json.Marshal(rec)
	if err != nil {
		return Change{}, fmt.Errorf("failed to encode %s row: %w", rec.TableName(), err)
	}
	return Change{
		Table:       rec.TableName(),
		Kind:        kind,
		Key:         rec.FilterKey(),
		Row:         row,
		CommittedAt: time.Now().UTC(),
	}, nil
}

// Decode validates a change and parses its row into the matching record type
func Decode(c Change) (Event, error) {
	if c.Kind != Insert && c.Kind != Update {
		return Event{}, fmt.Errorf("%w: kind %q", ErrUnexpectedShape, c.Kind)
	}

	var (
		rec Record
		err error
	)
	switch c.Table {
	case models.TableSessions:
		rec, err = decodeRow[models.Session](c.Row)
	case models.TableParticipants:
		rec, err = decodeRow[models.Participant](c.Row)
	case models.TableFeedback:
		rec, err = decodeRow[models.Feedback](c.Row)
	case models.TablePresentations:
		rec, err = decodeRow[models.PresentationState](c.Row)
	case models.TableTeachingFeedback:
		rec, err = decodeRow[models.TeachingFeedback](c.Row)
	case models.TableTeachingQuestions:
		rec, err = decodeRow[models.TeachingQuestion](c.Row)
	case models.TableTeacherMessages:
		rec, err = decodeRow[models.TeacherMessage](c.Row)
	default:
		return Event{}, fmt.Errorf("%w: table %q", ErrUnexpectedShape, c.Table)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s row: %v", ErrUnexpectedShape, c.Table, err)
	}

	// The row is authoritative for routing; a mismatched key would leak
	// rows across sessions.
	if rec.FilterKey() != c.Key {
		return Event{}, fmt.Errorf("%w: key %q does not match row key %q", ErrUnexpectedShape, c.Key, rec.FilterKey())
	}

	return Event{
		Table:       c.Table,
		Kind:        c.Kind,
		Key:         c.Key,
		Record:      rec,
		CommittedAt: c.CommittedAt,
	}, nil
}

func decodeRow[T Record](raw json.RawMessage) (T, error) {
	var row T
	if len(raw) == 0 {
		return row, errors.New("empty row")
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, err
	}
	if row.FilterKey() == "" {
		return row, errors.New("row has no filter key")
	}
	return row, nil
}
