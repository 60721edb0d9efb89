package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/realtime"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/repository/sqlite"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []realtime.Notification
}

func (p *recordingPublisher) Publish(n realtime.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPublisher) changes() []realtime.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Change
	for _, n := range p.sent {
		out = append(out, n.Changes()...)
	}
	return out
}

type fixture struct {
	store     *sqlite.Store
	log       *CompletionLog
	cache     *AggregateCache
	habits    *HabitService
	streaks   *StreakService
	publisher *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	f := &fixture{store: store, publisher: &recordingPublisher{}, now: now}
	clock := func() time.Time { return f.now }

	f.log = NewCompletionLog(store, store, time.UTC)
	f.log.now = clock
	f.cache = NewAggregateCache(store, store, time.UTC)
	f.cache.now = clock
	f.habits = NewHabitService(store, store, f.log, f.cache, f.publisher)
	f.habits.now = clock
	f.streaks = NewStreakService(store, store, time.UTC)
	f.streaks.now = clock
	return f
}

func (f *fixture) createHabit(t *testing.T, owner primitive.ObjectID, title string) *models.Habit {
	t.Helper()
	h, err := f.habits.CreateHabit(context.Background(), owner, HabitInput{Title: title})
	require.NoError(t, err)
	return h
}

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestCompletionLog_Append(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	c, err := f.log.Append(ctx, habit.ID, owner, day(2024, 1, 3, 8))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", c.Day)
	assert.Equal(t, owner, c.UserID)

	again, err := f.log.Append(ctx, habit.ID, owner, day(2024, 1, 3, 20))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateCompletion)
	require.NotNil(t, again)
	assert.Equal(t, c.ID, again.ID, "the first insert wins")

	_, err = f.log.Append(ctx, habit.ID, primitive.NewObjectID(), time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.log.Append(ctx, habit.ID, primitive.NilObjectID, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.log.Append(ctx, primitive.NewObjectID(), owner, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrHabitNotFound)

	_, err = f.log.Append(ctx, habit.ID, owner, f.now.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrInvalidCompletion)

	all, err := f.log.ListByHabit(ctx, habit.ID, models.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompletionLog_AppendDefaultsToNow(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	c, err := f.log.Append(context.Background(), habit.ID, owner, time.Time{})
	require.NoError(t, err)
	assert.True(t, c.CompletedAt.Equal(f.now))
}

func TestCompletionLog_DayKeyUsesLocation(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	tokyo := time.FixedZone("JST", 9*3600)
	f.log.loc = tokyo
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	// 20:00 UTC on Jan 2 is already Jan 3 in Tokyo
	c, err := f.log.Append(context.Background(), habit.ID, owner, day(2024, 1, 2, 20))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", c.Day)
}

func TestCompletionLog_CompletedToday(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	a := f.createHabit(t, owner, "A")
	b := f.createHabit(t, owner, "B")
	other := f.createHabit(t, primitive.NewObjectID(), "Other")

	_, err := f.log.Append(ctx, a.ID, owner, day(2024, 1, 3, 1))
	require.NoError(t, err)
	_, err = f.log.Append(ctx, b.ID, owner, day(2024, 1, 2, 23))
	require.NoError(t, err)
	_, err = f.log.Append(ctx, other.ID, other.UserID, day(2024, 1, 3, 2))
	require.NoError(t, err)

	ids, err := f.log.CompletedToday(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{a.ID}, ids)

	empty, err := f.log.CompletedToday(ctx, primitive.NilObjectID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCompletionLog_AbsentSessionReadsEmpty(t *testing.T) {
	f := newFixture(t, time.Now())

	list, err := f.log.ListByOwner(context.Background(), primitive.NilObjectID, models.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.log.ListByHabit(context.Background(), primitive.NilObjectID, models.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHabitService_CreateHabit(t *testing.T) {
	f := newFixture(t, day(2024, 1, 1, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()

	h, err := f.habits.CreateHabit(ctx, owner, HabitInput{Title: "  Meditate  ", Description: "10 min"})
	require.NoError(t, err)
	assert.Equal(t, "Meditate", h.Title)
	assert.Equal(t, models.FrequencyDaily, h.Frequency)
	assert.Equal(t, 0, h.StreakCount)
	assert.True(t, h.LastCompleted.Equal(models.NeverCompleted))

	_, err = f.habits.CreateHabit(ctx, owner, HabitInput{Title: "   "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidHabit)

	_, err = f.habits.CreateHabit(ctx, owner, HabitInput{Title: "Run", Frequency: "hourly"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidHabit)

	_, err = f.habits.CreateHabit(ctx, primitive.NilObjectID, HabitInput{Title: "Run"})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	weekly, err := f.habits.CreateHabit(ctx, owner, HabitInput{Title: "Call mum", Frequency: models.FrequencyWeekly})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyWeekly, weekly.Frequency)

	changes := f.publisher.changes()
	require.Len(t, changes, 2)
	assert.Equal(t, realtime.Change{Collection: "habits", ResourceID: h.ID.Hex(), Operation: realtime.OpCreate}, changes[0])

	list, err := f.habits.ListHabits(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	none, err := f.habits.ListHabits(ctx, primitive.NilObjectID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHabitService_ThreeConsecutiveDays(t *testing.T) {
	f := newFixture(t, day(2024, 1, 1, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	for d := 1; d <= 3; d++ {
		f.now = day(2024, 1, d, 9)
		res, err := f.habits.CompleteHabit(ctx, owner, habit.ID, time.Time{})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, d, res.Metrics.CurrentStreak)
	}

	stored, err := f.store.GetHabitByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.StreakCount)
	assert.True(t, stored.LastCompleted.Equal(day(2024, 1, 3, 9)))

	m, err := f.streaks.MetricsForHabit(ctx, owner, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.Metrics{CurrentStreak: 3, BestStreak: 3, TotalCompletions: 3, LastCompleted: day(2024, 1, 3, 9)}, m)
}

func TestHabitService_CompleteTwiceSameDayIsNoop(t *testing.T) {
	f := newFixture(t, day(2024, 1, 1, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	first, err := f.habits.CompleteHabit(ctx, owner, habit.ID, time.Time{})
	require.NoError(t, err)
	published := len(f.publisher.changes())

	f.now = f.now.Add(3 * time.Hour)
	second, err := f.habits.CompleteHabit(ctx, owner, habit.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Completion.ID, second.Completion.ID)
	assert.Equal(t, 1, second.Metrics.TotalCompletions)
	assert.Len(t, f.publisher.changes(), published, "no notification for a no-op")

	stored, err := f.store.GetHabitByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.StreakCount)
}

func TestHabitService_CompletePublishes(t *testing.T) {
	f := newFixture(t, day(2024, 1, 1, 9))
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	res, err := f.habits.CompleteHabit(context.Background(), owner, habit.ID, time.Time{})
	require.NoError(t, err)

	changes := f.publisher.changes()
	require.Len(t, changes, 3)
	assert.Equal(t, realtime.Change{Collection: "habit_completions", ResourceID: res.Completion.ID.Hex(), Operation: realtime.OpCreate}, changes[1])
	assert.Equal(t, realtime.Change{Collection: "habits", ResourceID: habit.ID.Hex(), Operation: realtime.OpUpdate}, changes[2])
}

func TestHabitService_OwnershipChecks(t *testing.T) {
	f := newFixture(t, day(2024, 1, 1, 9))
	ctx := context.Background()
	owner, intruder := primitive.NewObjectID(), primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	_, err := f.habits.GetHabit(ctx, intruder, habit.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.habits.CompleteHabit(ctx, intruder, habit.ID, time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.habits.ListCompletions(ctx, intruder, habit.ID, models.TimeRange{})
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	err = f.habits.DeleteHabit(ctx, intruder, habit.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.streaks.MetricsForHabit(ctx, intruder, habit.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotOwner)

	_, err = f.habits.GetHabit(ctx, owner, primitive.NewObjectID())
	assert.ErrorIs(t, err, apperrors.ErrHabitNotFound)
}

func TestHabitService_DeleteCascades(t *testing.T) {
	f := newFixture(t, day(2024, 1, 2, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	_, err := f.habits.CompleteHabit(ctx, owner, habit.ID, day(2024, 1, 1, 9))
	require.NoError(t, err)
	_, err = f.habits.CompleteHabit(ctx, owner, habit.ID, day(2024, 1, 2, 9))
	require.NoError(t, err)

	require.NoError(t, f.habits.DeleteHabit(ctx, owner, habit.ID))

	_, err = f.store.GetHabitByID(ctx, habit.ID)
	assert.ErrorIs(t, err, apperrors.ErrHabitNotFound)
	left, err := f.store.ListCompletionsByHabit(ctx, habit.ID, models.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, left)

	changes := f.publisher.changes()
	assert.Equal(t, realtime.OpDelete, changes[len(changes)-1].Operation)
}

func TestHabitService_ListCompletionsWindow(t *testing.T) {
	f := newFixture(t, day(2024, 1, 5, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")
	for d := 1; d <= 4; d++ {
		_, err := f.habits.CompleteHabit(ctx, owner, habit.ID, day(2024, 1, d, 9))
		require.NoError(t, err)
	}

	list, err := f.habits.ListCompletions(ctx, owner, habit.ID, models.TimeRange{From: day(2024, 1, 2, 0), To: day(2024, 1, 4, 0)})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAggregateCache_OverwritesCorruptedFields(t *testing.T) {
	f := newFixture(t, day(2024, 1, 10, 9))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")
	for _, d := range []int{1, 2, 3, 5, 6} {
		_, err := f.log.Append(ctx, habit.ID, owner, day(2024, 1, d, 9))
		require.NoError(t, err)
	}

	require.NoError(t, f.store.UpdateAggregate(ctx, habit.ID, 99, day(2030, 1, 1, 0)))

	// four days after the last completion the current streak is broken
	m, err := f.cache.Reconcile(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.CurrentStreak)
	assert.Equal(t, 3, m.BestStreak)
	assert.Equal(t, 5, m.TotalCompletions)

	stored, err := f.store.GetHabitByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.StreakCount)
	assert.True(t, stored.LastCompleted.Equal(day(2024, 1, 6, 9)))
}

func TestAggregateCache_EmptyLogKeepsSentinel(t *testing.T) {
	f := newFixture(t, day(2024, 1, 10, 9))
	habit := f.createHabit(t, primitive.NewObjectID(), "Read")

	m, err := f.cache.Reconcile(context.Background(), habit.ID)
	require.NoError(t, err)
	assert.Equal(t, streak.Metrics{}, m)

	stored, err := f.store.GetHabitByID(context.Background(), habit.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastCompleted.Equal(models.NeverCompleted))
}

func TestAggregateCache_ConcurrentWritesConverge(t *testing.T) {
	f := newFixture(t, day(2024, 1, 20, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	var wg sync.WaitGroup
	for d := 1; d <= 20; d++ {
		wg.Add(2)
		go func(d int) {
			defer wg.Done()
			_, err := f.habits.CompleteHabit(ctx, owner, habit.ID, day(2024, 1, d, 8))
			assert.NoError(t, err)
		}(d)
		go func() {
			defer wg.Done()
			_, err := f.cache.Reconcile(ctx, habit.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertNoDrift(t, f, habit.ID, 20)
}

func TestAggregateCache_ConcurrentCompletionsLeaveNoDrift(t *testing.T) {
	f := newFixture(t, day(2024, 1, 20, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")

	var wg sync.WaitGroup
	for d := 1; d <= 20; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			_, err := f.habits.CompleteHabit(ctx, owner, habit.ID, day(2024, 1, d, 8))
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	assertNoDrift(t, f, habit.ID, 20)
}

// assertNoDrift checks the cached fields against a recomputation of the log.
func assertNoDrift(t *testing.T, f *fixture, habitID primitive.ObjectID, wantStreak int) {
	t.Helper()
	ctx := context.Background()

	completions, err := f.store.ListCompletionsByHabit(ctx, habitID, models.TimeRange{})
	require.NoError(t, err)
	want := streak.CalculateCompletions(completions, streak.Options{Now: f.now})

	stored, err := f.store.GetHabitByID(ctx, habitID)
	require.NoError(t, err)
	assert.Equal(t, wantStreak, want.CurrentStreak)
	assert.Equal(t, want.CurrentStreak, stored.StreakCount)
	assert.True(t, stored.LastCompleted.Equal(want.LastCompleted))
}

// slowHabitStore holds GetHabitByID until release is closed.
type slowHabitStore struct {
	repository.HabitStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowHabitStore) GetHabitByID(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.HabitStore.GetHabitByID(ctx, id)
}

func TestAggregateCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	owner := primitive.NewObjectID()
	habit := f.createHabit(t, owner, "Read")
	_, err := f.log.Append(context.Background(), habit.ID, owner, day(2024, 1, 3, 8))
	require.NoError(t, err)

	slow := &slowHabitStore{HabitStore: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	cache := NewAggregateCache(slow, f.store, time.UTC)
	cache.now = func() time.Time { return f.now }

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Reconcile(first, habit.ID)
		firstErr <- err
	}()
	<-slow.entered

	type result struct {
		metrics streak.Metrics
		err     error
	}
	second := make(chan result, 1)
	go func() {
		m, err := cache.Reconcile(context.Background(), habit.ID)
		second <- result{m, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared recomputation")
	}

	// give the second caller time to join the running flight
	time.Sleep(20 * time.Millisecond)
	close(slow.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.metrics.CurrentStreak)

	stored, err := f.store.GetHabitByID(context.Background(), habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.StreakCount)
}

func TestAggregateCache_ReconcileAll(t *testing.T) {
	f := newFixture(t, day(2024, 1, 3, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	a := f.createHabit(t, owner, "A")
	b := f.createHabit(t, primitive.NewObjectID(), "B")

	_, err := f.log.Append(ctx, a.ID, owner, day(2024, 1, 2, 9))
	require.NoError(t, err)
	_, err = f.log.Append(ctx, a.ID, owner, day(2024, 1, 3, 9))
	require.NoError(t, err)

	n, err := f.cache.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	storedA, err := f.store.GetHabitByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, storedA.StreakCount)

	storedB, err := f.store.GetHabitByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, storedB.StreakCount)
}

func TestStreakService_Leaderboard(t *testing.T) {
	f := newFixture(t, day(2024, 1, 10, 12))
	ctx := context.Background()
	owner := primitive.NewObjectID()
	short := f.createHabit(t, owner, "Short")
	long := f.createHabit(t, owner, "Long")
	idle := f.createHabit(t, owner, "Idle")

	for d := 1; d <= 5; d++ {
		_, err := f.log.Append(ctx, long.ID, owner, day(2024, 1, d, 9))
		require.NoError(t, err)
	}
	for d := 8; d <= 9; d++ {
		_, err := f.log.Append(ctx, short.ID, owner, day(2024, 1, d, 9))
		require.NoError(t, err)
	}

	entries, err := f.streaks.Leaderboard(ctx, owner)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, long.ID, entries[0].Habit.ID)
	assert.Equal(t, 5, entries[0].Metrics.BestStreak)
	assert.Equal(t, 0, entries[0].Metrics.CurrentStreak)
	assert.Equal(t, short.ID, entries[1].Habit.ID)
	assert.Equal(t, 2, entries[1].Metrics.CurrentStreak)
	assert.Equal(t, idle.ID, entries[2].Habit.ID)
	assert.Equal(t, 3, entries[2].Badge)

	empty, err := f.streaks.Leaderboard(ctx, primitive.NilObjectID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
