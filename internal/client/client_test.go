package client

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classpulse/internal/content"
	"classpulse/internal/credentials"
	"classpulse/internal/database"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/service"
)

// fakeFetcher serves a participant row and counts reads
type fakeFetcher struct {
	mu     sync.Mutex
	p      models.Participant
	calls  int
	lastAt time.Time
}

func (f *fakeFetcher) Get(ctx context.Context, id string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastAt = time.Now()
	p := f.p
	return &p, nil
}

func (f *fakeFetcher) set(status models.ParticipantStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p.Status = status
}

func (f *fakeFetcher) stats() (int, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.lastAt
}

// downFeed never connects
type downFeed struct{}

func (downFeed) Publish(ctx context.Context, change realtime.Change) error {
	return realtime.ErrConnection
}

func (downFeed) Subscribe(models.Table, string, realtime.EventKind, func(realtime.Event)) (*realtime.Subscription, error) {
	return nil, realtime.ErrConnection
}

func pending() models.Participant {
	return models.Participant{ID: "p1", SessionCode: "AB12CD", StudentName: "Ava", Status: models.StatusPending}
}

func newHub(t *testing.T) *realtime.Hub {
	t.Helper()
	hub := realtime.NewHub(16)
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestScopeCloseStopsCallbacks(t *testing.T) {
	hub := newHub(t)
	scope := NewScope()

	var calls atomic.Int32
	_, err := scope.Subscribe(hub, models.TableParticipants, "AB12CD", realtime.Any, func(realtime.Event) { calls.Add(1) })
	require.NoError(t, err)
	scope.Every(5*time.Millisecond, func(context.Context) { calls.Add(1) })
	scope.After(5*time.Millisecond, func() { calls.Add(1) })

	scope.Close()
	scope.Close()
	scope.Wait()
	assert.False(t, scope.Current())
	assert.Error(t, scope.Context().Err())

	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Insert, pending()))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	_, err = scope.Subscribe(hub, models.TableParticipants, "AB12CD", realtime.Any, func(realtime.Event) {})
	assert.ErrorIs(t, err, realtime.ErrClosed)
}

func TestScopeWaitOutlastsRunningHandler(t *testing.T) {
	hub := newHub(t)
	scope := NewScope()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	_, err := scope.Subscribe(hub, models.TableParticipants, "AB12CD", realtime.Any, func(realtime.Event) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Insert, pending()))
	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, pending()))
	<-entered
	scope.Close()

	waited := make(chan struct{})
	go func() {
		scope.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned while a callback was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the callback finished")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestScopeWaitOutlastsRunningTimer(t *testing.T) {
	scope := NewScope()

	entered := make(chan struct{})
	release := make(chan struct{})
	scope.After(0, func() {
		close(entered)
		<-release
	})
	scope.After(time.Hour, func() { t.Error("cancelled timer fired") })
	<-entered
	scope.Close()

	waited := make(chan struct{})
	go func() {
		scope.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("Wait returned while a timer callback was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the timer callback finished")
	}
}

func TestApprovalViaFeed(t *testing.T) {
	hub := newHub(t)

	var approved atomic.Int32
	w, err := WatchApproval(pending(), ApprovalConfig{
		Feed:         hub,
		DisplayDelay: 10 * time.Millisecond,
		OnApproved:   func(models.Participant) { approved.Add(1) },
	})
	require.NoError(t, err)
	defer w.Close()

	p := pending()
	p.Status = models.StatusApproved
	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, p))
	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, p))

	select {
	case <-w.Settled():
	case <-time.After(time.Second):
		t.Fatal("watcher did not settle")
	}
	assert.Equal(t, Approved, w.State())
	assert.Equal(t, int32(1), approved.Load())
	assert.False(t, w.Degraded())
}

func TestApprovalIgnoresOtherParticipants(t *testing.T) {
	hub := newHub(t)
	w, err := WatchApproval(pending(), ApprovalConfig{Feed: hub})
	require.NoError(t, err)
	defer w.Close()

	other := pending()
	other.ID = "p2"
	other.Status = models.StatusRejected
	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, other))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Waiting, w.State())
}

func TestPollingStopsAfterDecision(t *testing.T) {
	fetcher := &fakeFetcher{p: pending()}
	interval := 10 * time.Millisecond

	var rejected atomic.Int32
	w, err := WatchApproval(pending(), ApprovalConfig{
		Fetcher:      fetcher,
		PollInterval: interval,
		OnRejected:   func(models.Participant) { rejected.Add(1) },
	})
	require.NoError(t, err)
	defer w.Close()

	require.Eventually(t, func() bool { calls, _ := fetcher.stats(); return calls >= 2 }, time.Second, time.Millisecond)
	fetcher.set(models.StatusRejected)

	<-w.Settled()
	decided := time.Now()
	time.Sleep(5 * interval)

	_, lastAt := fetcher.stats()
	assert.True(t, lastAt.Before(decided.Add(interval)), "polled %v after the decision", lastAt.Sub(decided))
	assert.Equal(t, Rejected, w.State())
	assert.Equal(t, int32(1), rejected.Load())
}

func TestFirstTerminalObservationWins(t *testing.T) {
	hub := newHub(t)
	fetcher := &fakeFetcher{p: pending()}
	fetcher.set(models.StatusApproved)

	var approved atomic.Int32
	w, err := WatchApproval(pending(), ApprovalConfig{
		Feed:         hub,
		Fetcher:      fetcher,
		PollInterval: 2 * time.Millisecond,
		OnApproved:   func(models.Participant) { approved.Add(1) },
	})
	require.NoError(t, err)
	defer w.Close()

	p := pending()
	p.Status = models.StatusApproved
	for i := 0; i < 5; i++ {
		require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, p))
	}

	<-w.Settled()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), approved.Load())
}

func TestApprovalTimesOut(t *testing.T) {
	fetcher := &fakeFetcher{p: pending()}

	timedOut := make(chan struct{})
	w, err := WatchApproval(pending(), ApprovalConfig{
		Fetcher:      fetcher,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      30 * time.Millisecond,
		OnTimeout:    func() { close(timedOut) },
	})
	require.NoError(t, err)
	defer w.Close()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("watcher never timed out")
	}
	assert.Equal(t, TimedOut, w.State())

	// A late decision does not override the timeout
	fetcher.set(models.StatusApproved)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, TimedOut, w.State())
}

func TestApprovalDegradesWithoutFeed(t *testing.T) {
	fetcher := &fakeFetcher{p: pending()}

	w, err := WatchApproval(pending(), ApprovalConfig{Feed: downFeed{}, Fetcher: fetcher, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()
	assert.True(t, w.Degraded())

	fetcher.set(models.StatusApproved)
	select {
	case <-w.Settled():
	case <-time.After(time.Second):
		t.Fatal("polling did not carry the decision")
	}

	_, err = WatchApproval(pending(), ApprovalConfig{Feed: downFeed{}})
	assert.ErrorIs(t, err, realtime.ErrConnection)

	_, err = WatchApproval(pending(), ApprovalConfig{})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestApprovalClosedBeforeDelay(t *testing.T) {
	hub := newHub(t)

	var approved atomic.Int32
	w, err := WatchApproval(pending(), ApprovalConfig{
		Feed:         hub,
		DisplayDelay: 50 * time.Millisecond,
		OnApproved:   func(models.Participant) { approved.Add(1) },
	})
	require.NoError(t, err)

	p := pending()
	p.Status = models.StatusApproved
	require.NoError(t, realtime.Emit(context.Background(), hub, realtime.Update, p))
	require.Eventually(t, func() bool { return w.State() == Approved }, time.Second, time.Millisecond)

	w.Close()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), approved.Load(), "no callback into a closed view")
}

// classroom runs the real services on a temporary SQLite database
type classroom struct {
	sessions      *service.SessionService
	participants  *service.ParticipantService
	presentations *service.PresentationService
	feedback      *service.FeedbackService
	hub           *realtime.Hub
}

func newClassroom(t *testing.T) *classroom {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(""))

	hub := newHub(t)
	sessions := service.NewSessionService(repository.NewSessionRepository(db), credentials.NewTokenIssuer("secret", time.Hour), hub)
	return &classroom{
		sessions:      sessions,
		participants:  service.NewParticipantService(repository.NewParticipantRepository(db), sessions, hub),
		presentations: service.NewPresentationService(repository.NewPresentationRepository(db), sessions, db, content.NewGenerator("", "", ""), hub),
		feedback:      service.NewFeedbackService(repository.NewFeedbackRepository(db), sessions, hub),
		hub:           hub,
	}
}

func TestJoinApproveReachesFeedbackScreen(t *testing.T) {
	const interval = 20 * time.Millisecond
	const delay = 15 * time.Millisecond

	tests := []struct {
		name    string
		usePoll bool
		useFeed bool
	}{
		{name: "feed only", useFeed: true},
		{name: "poll only", usePoll: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassroom(t)
			ctx := context.Background()

			session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
			require.NoError(t, err)
			ava, err := c.participants.Join(ctx, session.Code, "Ava", "")
			require.NoError(t, err)

			cfg := ApprovalConfig{PollInterval: interval, DisplayDelay: delay}
			if tt.useFeed {
				cfg.Feed = c.hub
			}
			if tt.usePoll {
				cfg.Fetcher = c.participants
			}
			screen := make(chan time.Time, 1)
			cfg.OnApproved = func(models.Participant) { screen <- time.Now() }

			w, err := WatchApproval(*ava, cfg)
			require.NoError(t, err)
			defer w.Close()

			approvedAt := time.Now()
			_, err = c.participants.Approve(ctx, session.Code, ava.ID)
			require.NoError(t, err)

			select {
			case at := <-screen:
				assert.GreaterOrEqual(t, at.Sub(approvedAt), delay)
			case <-time.After(interval + delay + 500*time.Millisecond):
				t.Fatal("student never reached the feedback screen")
			}
			assert.Equal(t, Approved, w.State())
		})
	}
}

func TestFollowerSeesLatestCard(t *testing.T) {
	c := newClassroom(t)
	ctx := context.Background()

	session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
	require.NoError(t, err)
	p, err := c.presentations.Start(ctx, session.Code, "lesson", []models.LessonCard{
		{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"},
	})
	require.NoError(t, err)

	f, err := FollowPresentation(ctx, c.presentations, c.hub, p.ID, nil)
	require.NoError(t, err)
	defer f.Close()

	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 1)
	require.NoError(t, err)
	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, _ := f.Current()
		return state.CurrentCardIndex == 2
	}, time.Second, time.Millisecond)
	_, card := f.Current()
	require.NotNil(t, card)
	assert.Equal(t, "c", card.ID)

	// A stale state does not move the follower back
	f.apply(models.PresentationState{ID: p.ID, SessionCode: session.Code, CurrentCardIndex: 1, Active: true, Revision: 1})
	state, _ := f.Current()
	assert.Equal(t, 2, state.CurrentCardIndex)

	_, err = c.presentations.End(ctx, session.Code, p.ID)
	require.NoError(t, err)
	select {
	case <-f.Ended():
	case <-time.After(time.Second):
		t.Fatal("follower did not see the end")
	}
}

// waitForCard waits until the follower shows card id at index
func waitForCard(t *testing.T, f *PresentationFollower, index int, id string) *models.LessonCard {
	t.Helper()
	var card *models.LessonCard
	require.Eventually(t, func() bool {
		var state models.PresentationState
		state, card = f.Current()
		return state.CurrentCardIndex == index && card != nil && card.ID == id
	}, time.Second, time.Millisecond, "card %s at %d", id, index)
	return card
}

func TestFollowerReloadsReorderedCards(t *testing.T) {
	c := newClassroom(t)
	ctx := context.Background()

	session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
	require.NoError(t, err)
	p, err := c.presentations.Start(ctx, session.Code, "lesson", []models.LessonCard{
		{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"},
	})
	require.NoError(t, err)

	f, err := FollowPresentation(ctx, c.presentations, c.hub, p.ID, nil)
	require.NoError(t, err)
	defer f.Close()
	waitForCard(t, f, 0, "a")

	_, err = c.presentations.Reorder(ctx, session.Code, p.ID, []string{"c", "a", "b"})
	require.NoError(t, err)
	waitForCard(t, f, 0, "c")

	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 1)
	require.NoError(t, err)
	waitForCard(t, f, 1, "a")
}

func TestFollowerSeesAddedAndRewrittenCards(t *testing.T) {
	c := newClassroom(t)
	ctx := context.Background()

	session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
	require.NoError(t, err)
	p, err := c.presentations.Start(ctx, session.Code, "lesson", []models.LessonCard{
		{ID: "a", Title: "A", Content: "Photosynthesis converts light energy"},
		{ID: "b", Title: "B", Content: "Chlorophyll absorbs wavelengths"},
	})
	require.NoError(t, err)

	var changes atomic.Int32
	f, err := FollowPresentation(ctx, c.presentations, c.hub, p.ID, func(models.PresentationState) {
		changes.Add(1)
	})
	require.NoError(t, err)
	defer f.Close()

	updated, err := c.presentations.AddBackgroundCard(ctx, session.Code, p.ID, "Plants", []string{"Explain photosynthesis"})
	require.NoError(t, err)
	background := waitForCard(t, f, 0, updated.Cards[0].ID)
	assert.Equal(t, models.CardTopicBackground, background.Type)

	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 1)
	require.NoError(t, err)
	waitForCard(t, f, 1, "a")

	_, err = c.presentations.SimplifyCard(ctx, session.Code, p.ID, "b")
	require.NoError(t, err)
	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 2)
	require.NoError(t, err)
	card := waitForCard(t, f, 2, "b")
	assert.True(t, card.StudentFriendly)
	assert.Equal(t, "Chlorophyll absorbs wavelengths", card.OriginalContent)
	assert.GreaterOrEqual(t, changes.Load(), int32(5))
}

func TestFollowerDegradedRefresh(t *testing.T) {
	c := newClassroom(t)
	ctx := context.Background()

	session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
	require.NoError(t, err)
	p, err := c.presentations.Start(ctx, session.Code, "lesson", []models.LessonCard{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)

	f, err := FollowPresentation(ctx, c.presentations, downFeed{}, p.ID, nil)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, f.Degraded())

	_, err = c.presentations.Advance(ctx, session.Code, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.Refresh(ctx))
	state, card := f.Current()
	assert.Equal(t, 1, state.CurrentCardIndex)
	assert.Equal(t, "b", card.ID)
}

func TestSessionStream(t *testing.T) {
	c := newClassroom(t)
	ctx := context.Background()

	session, _, err := c.sessions.Create(ctx, "Ms Frizzle", "")
	require.NoError(t, err)

	stream, err := NewSessionStream(c.hub, session.Code, "", 2)
	require.NoError(t, err)
	defer stream.Close()

	for _, v := range []models.FeedbackValue{models.FeedbackHappy, models.FeedbackConfused, models.FeedbackThinking} {
		_, err := c.feedback.Submit(ctx, session.Code, "Ava", v)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		items := stream.Items()
		return len(items) == 2 && items[0].Record.(models.Feedback).Value == models.FeedbackThinking
	}, time.Second, time.Millisecond)

	_, err = NewSessionStream(downFeed{}, session.Code, "", 0)
	assert.True(t, errors.Is(err, realtime.ErrConnection))
}
