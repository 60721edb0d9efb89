// Package reconciler keeps one viewing session's habit view consistent with
// the store while change notifications arrive.
//
// A Session subscribes to the owner's habit and completion collections and
// moves through the states
//
//	Disconnected -> Connecting -> Subscribed -> Notified -> Reconciling -> Subscribed
//
// falling back to Disconnected whenever the channel drops it. Subscriptions
// are long-lived: they are released only when the session is torn down.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/ranking"
	"github.com/Dias221467/Habit_Streaks/internal/realtime"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Notified
	Reconciling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Notified:
		return "notified"
	case Reconciling:
		return "reconciling"
	}
	return "unknown"
}

// View is what a session shows: the owner's habits, the habits completed
// today and the streak ranking. Stale marks a re-emitted view while the
// session is reconnecting.
type View struct {
	Habits         []models.Habit       `json:"habits"`
	CompletedToday []primitive.ObjectID `json:"completed_today"`
	Ranking        []ranking.Entry      `json:"ranking"`
	Stale          bool                 `json:"stale"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Sink receives every view a session produces, always from the goroutine
// running Session.Run.
type Sink interface {
	Emit(View) error
}

// HabitSource loads an owner's habits with their derived metrics.
type HabitSource interface {
	MetricsForOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, map[primitive.ObjectID]streak.Metrics, error)
}

// CompletionSource loads the habits an owner completed today.
type CompletionSource interface {
	CompletedToday(ctx context.Context, ownerID primitive.ObjectID) ([]primitive.ObjectID, error)
}

// AggregateReconciler recomputes the cached streak fields of a habit.
type AggregateReconciler interface {
	Reconcile(ctx context.Context, habitID primitive.ObjectID) (streak.Metrics, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Channel     realtime.Channel
	Habits      HabitSource
	Completions CompletionSource
	Cache       AggregateReconciler

	HabitsCollection      string
	CompletionsCollection string

	// NewBackoff returns the retry policy for (re)subscribing. Defaults to
	// realtime.DefaultBackoff.
	NewBackoff func() backoff.BackOff
	Now        func() time.Time
}

type pending struct {
	full      bool
	habits    bool
	today     bool
	reconcile map[primitive.ObjectID]struct{}
}

func newPending() pending {
	return pending{reconcile: map[primitive.ObjectID]struct{}{}}
}

func (p pending) empty() bool {
	return !p.full && !p.habits && !p.today && len(p.reconcile) == 0
}

// Session is the realtime reconciler of one viewing session. Its habit,
// metrics and today state belong to the instance and are never shared.
type Session struct {
	id    string
	owner primitive.ObjectID
	deps  Deps
	sink  Sink

	wake chan struct{}

	mu       sync.Mutex
	state    State
	pending  pending
	needFull bool
	habits   []models.Habit
	metrics  map[primitive.ObjectID]streak.Metrics
	today    []primitive.ObjectID
}

// New creates a session for owner. A zero owner is an absent session that
// shows an empty view and never subscribes.
func New(id string, owner primitive.ObjectID, deps Deps, sink Sink) *Session {
	if deps.NewBackoff == nil {
		deps.NewBackoff = realtime.DefaultBackoff
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		id:      id,
		owner:   owner,
		deps:    deps,
		sink:    sink,
		wake:    make(chan struct{}, 1),
		pending: newPending(),
		habits:  []models.Habit{},
		metrics: map[primitive.ObjectID]streak.Metrics{},
		today:   []primitive.ObjectID{},
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh forces a full refetch on the next cycle.
func (s *Session) Refresh() {
	s.mu.Lock()
	s.pending.full = true
	s.mu.Unlock()
	s.signal()
}

// Run drives the session until ctx is cancelled. Both subscriptions are
// released before it returns and the sink is not called afterwards.
func (s *Session) Run(ctx context.Context) error {
	log := s.logger()
	defer s.setState(Disconnected)

	if s.owner.IsZero() {
		s.emit(false)
		<-ctx.Done()
		return nil
	}

	retry := s.deps.NewBackoff()
	for {
		s.setState(Connecting)
		subs, err := s.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("Subscribe failed, retrying")
			s.emit(true)
			if realtime.Wait(ctx, retry) != nil {
				return nil
			}
			continue
		}

		retry.Reset()
		s.setState(Subscribed)
		s.mu.Lock()
		s.pending.full = true
		s.mu.Unlock()
		s.signal()
		log.Info("Realtime session subscribed")

		err = s.serve(ctx, subs)
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		if ctx.Err() != nil {
			log.Info("Realtime session closed")
			return nil
		}

		log.WithError(err).Warn("Realtime subscription lost, reconnecting")
		s.setState(Disconnected)
		s.emit(true)
		if realtime.Wait(ctx, retry) != nil {
			return nil
		}
	}
}

func (s *Session) subscribe(ctx context.Context) ([]*realtime.Subscription, error) {
	var subs []*realtime.Subscription
	for _, coll := range []string{s.deps.HabitsCollection, s.deps.CompletionsCollection} {
		sub, err := s.deps.Channel.Subscribe(ctx, realtime.Descriptor{Collection: coll, OwnerID: s.owner}, s.onNotification)
		if err != nil {
			for _, prev := range subs {
				prev.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Session) serve(ctx context.Context, subs []*realtime.Subscription) error {
	habitsLost, completionsLost := subs[0].Lost(), subs[1].Lost()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-habitsLost:
			return fmt.Errorf("%s: %w", subs[0].Descriptor(), apperrors.ErrSubscriptionLost)
		case <-completionsLost:
			return fmt.Errorf("%s: %w", subs[1].Descriptor(), apperrors.ErrSubscriptionLost)
		case <-s.wake:
			s.reconcile(ctx)
		}
	}
}

// onNotification runs on the publisher's goroutine; it only records work.
func (s *Session) onNotification(n realtime.Notification) {
	s.mu.Lock()
	for _, c := range n.Changes() {
		switch c.Collection {
		case s.deps.HabitsCollection:
			s.pending.habits = true
		case s.deps.CompletionsCollection:
			s.pending.today = true
			if habitID, ok := n.PayloadID("habit_id"); ok {
				s.pending.reconcile[habitID] = struct{}{}
			}
		}
	}
	if s.state == Subscribed {
		s.state = Notified
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) reconcile(ctx context.Context) {
	s.mu.Lock()
	work := s.pending
	s.pending = newPending()
	if s.needFull {
		work.full = true
	}
	if work.empty() {
		s.state = Subscribed
		s.mu.Unlock()
		return
	}
	s.state = Reconciling
	s.mu.Unlock()

	failed, err := s.refetch(ctx, work)

	s.mu.Lock()
	s.needFull = err != nil
	// habits whose aggregate could not be reconciled are retried with the next trigger
	for _, habitID := range failed {
		s.pending.reconcile[habitID] = struct{}{}
	}
	if s.state == Reconciling {
		s.state = Subscribed
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			s.logger().WithError(err).Warn("Refetch failed, next trigger refreshes everything")
		}
		return
	}
	s.emit(false)
}

func (s *Session) refetch(ctx context.Context, work pending) ([]primitive.ObjectID, error) {
	var (
		errs   []error
		failed []primitive.ObjectID
	)

	for habitID := range work.reconcile {
		if _, err := s.deps.Cache.Reconcile(ctx, habitID); err != nil && !errors.Is(err, apperrors.ErrHabitNotFound) {
			errs = append(errs, err)
			failed = append(failed, habitID)
		}
	}

	// completions move metrics as well as the today set
	if work.full || work.habits || work.today {
		habits, metrics, err := s.deps.Habits.MetricsForOwner(ctx, s.owner)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.mu.Lock()
			s.habits, s.metrics = habits, metrics
			s.mu.Unlock()
		}
	}

	if work.full || work.today {
		today, err := s.deps.Completions.CompletedToday(ctx, s.owner)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.mu.Lock()
			s.today = today
			s.mu.Unlock()
		}
	}

	return failed, errors.Join(errs...)
}

func (s *Session) emit(stale bool) {
	s.mu.Lock()
	view := View{
		Habits:         append([]models.Habit{}, s.habits...),
		CompletedToday: append([]primitive.ObjectID{}, s.today...),
		Ranking:        ranking.Rank(s.habits, s.metrics),
		Stale:          stale,
		GeneratedAt:    s.deps.Now().UTC(),
	}
	s.mu.Unlock()

	if err := s.sink.Emit(view); err != nil {
		s.logger().WithError(err).Debug("Failed to emit view")
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) logger() *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"session_id": s.id,
		"user_id":    s.owner.Hex(),
	})
}
