package client

import (
	"context"
	"sync"

	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

// PresentationReader reads a presentation with its cards
type PresentationReader interface {
	Get(ctx context.Context, id string) (*models.LessonPresentation, error)
}

// PresentationFollower keeps a student's view on the teacher's current card.
// It subscribes before reading so no move between the two is lost, and it
// discards states older than the one it holds. A state whose CardsRevision is
// ahead of the held cards triggers a re-read of the card list.
type PresentationFollower struct {
	reader   PresentationReader
	scope    *Scope
	onChange func(models.PresentationState)

	mu            sync.Mutex
	cards         []models.LessonCard
	cardsRevision int64
	state         models.PresentationState
	degraded      bool
	ended         chan struct{}
	endOnce       sync.Once
}

// FollowPresentation starts following presentation id. onChange, if set,
// runs for every accepted state. A failed subscription leaves the follower
// degraded; Refresh then has to be called to pick up moves.
func FollowPresentation(ctx context.Context, reader PresentationReader, feed realtime.Feed, id string, onChange func(models.PresentationState)) (*PresentationFollower, error) {
	f := &PresentationFollower{
		reader:   reader,
		scope:    NewScope(),
		onChange: onChange,
		ended:    make(chan struct{}),
	}

	if feed != nil {
		if _, err := f.scope.Subscribe(feed, models.TablePresentations, id, realtime.Update, f.onEvent); err != nil {
			f.degraded = true
			logger.Warn("live presentation updates unavailable", err, map[string]interface{}{"presentation_id": id})
		}
	} else {
		f.degraded = true
	}

	p, err := reader.Get(ctx, id)
	if err != nil {
		f.scope.Close()
		return nil, err
	}

	f.setCards(p)
	f.apply(p.State())
	return f, nil
}

func (f *PresentationFollower) onEvent(ev realtime.Event) {
	if s, ok := ev.Record.(models.PresentationState); ok {
		f.apply(s)
	}
}

// apply takes s if it is newer than the held state. Cards are re-read before
// onChange runs so Current never pairs a new index with an old card list.
func (f *PresentationFollower) apply(s models.PresentationState) {
	f.mu.Lock()
	if f.state.ID != "" && !s.NewerThan(f.state) {
		f.mu.Unlock()
		return
	}
	f.state = s
	stale := s.CardsRevision > f.cardsRevision
	f.mu.Unlock()

	if stale {
		f.reloadCards(s.ID)
	}

	if f.onChange != nil {
		f.onChange(s)
	}
	if !s.Active {
		f.endOnce.Do(func() {
			close(f.ended)
			f.scope.Close()
		})
	}
}

func (f *PresentationFollower) reloadCards(id string) {
	p, err := f.reader.Get(f.scope.Context(), id)
	if err != nil {
		if f.scope.Current() {
			logger.Warn("failed to reload presentation cards", err, map[string]interface{}{"presentation_id": id})
		}
		return
	}
	f.setCards(p)
}

// setCards keeps p's cards unless newer ones are already held
func (f *PresentationFollower) setCards(p *models.LessonPresentation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cards == nil || p.CardsRevision > f.cardsRevision {
		f.cards = p.Cards
		f.cardsRevision = p.CardsRevision
	}
}

// Refresh re-reads the presentation, including its cards
func (f *PresentationFollower) Refresh(ctx context.Context) error {
	f.mu.Lock()
	id := f.state.ID
	f.mu.Unlock()

	p, err := f.reader.Get(ctx, id)
	if err != nil {
		return err
	}
	f.setCards(p)
	f.apply(p.State())
	return nil
}

// Current returns the held state and the card it points at, nil when the
// index is outside the cards read so far
func (f *PresentationFollower) Current() (models.PresentationState, *models.LessonCard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.CurrentCardIndex < 0 || f.state.CurrentCardIndex >= len(f.cards) {
		return f.state, nil
	}
	card := f.cards[f.state.CurrentCardIndex]
	return f.state, &card
}

// Degraded reports whether the follower is without live updates
func (f *PresentationFollower) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// Ended is closed once the presentation is seen inactive
func (f *PresentationFollower) Ended() <-chan struct{} {
	return f.ended
}

// Close stops following
func (f *PresentationFollower) Close() {
	f.scope.Close()
}
