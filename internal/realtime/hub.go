package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// Descriptor names what a subscription listens to: one collection, scoped
// to the documents of one owner.
type Descriptor struct {
	Collection string
	OwnerID    primitive.ObjectID
}

func (d Descriptor) String() string {
	return fmt.Sprintf("users.%s.%s.documents", d.OwnerID.Hex(), d.Collection)
}

// Handler receives notifications. It runs on the publisher's goroutine and
// must neither block nor call back into the channel.
type Handler func(Notification)

// Channel is the change-notification channel consumed by viewing sessions.
type Channel interface {
	Subscribe(ctx context.Context, desc Descriptor, handler Handler) (*Subscription, error)
}

// Publisher accepts change notifications from writers.
type Publisher interface {
	Publish(n Notification)
}

// Subscription is a live registration on a Hub. It stays active until
// Unsubscribe is called or the hub drops it, in which case Lost is closed.
type Subscription struct {
	id   uint64
	desc Descriptor
	hub  *Hub
	lost chan struct{}
	once sync.Once
}

// Unsubscribe releases the subscription. Once it returns no further
// notification is delivered to the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.id)
}

// Lost is closed when the channel drops the subscription on its own.
func (s *Subscription) Lost() <-chan struct{} {
	return s.lost
}

func (s *Subscription) Descriptor() Descriptor {
	return s.desc
}

func (s *Subscription) markLost() {
	s.once.Do(func() { close(s.lost) })
}

type entry struct {
	sub     *Subscription
	handler Handler
}

// Hub fans notifications out to subscribers in-process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]entry
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]entry)}
}

// Subscribe registers handler for desc.
func (h *Hub) Subscribe(ctx context.Context, desc Descriptor, handler Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if desc.OwnerID.IsZero() || desc.Collection == "" {
		return nil, errors.New("subscription needs an owner and a collection")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, apperrors.ErrSubscriptionLost
	}

	h.nextID++
	sub := &Subscription{id: h.nextID, desc: desc, hub: h, lost: make(chan struct{})}
	h.subs[sub.id] = entry{sub: sub, handler: handler}

	logger.Log.WithField("channel", desc.String()).Debug("Subscription registered")
	return sub, nil
}

// Publish delivers n to every subscriber of its collection whose owner
// matches the payload's user_id.
func (h *Hub) Publish(n Notification) {
	owner, ok := n.PayloadID("user_id")
	if !ok {
		logger.Log.WithField("events", n.Events).Warn("Dropping notification without owner")
		return
	}

	collections := map[string]bool{}
	for _, c := range n.Changes() {
		collections[c.Collection] = true
	}
	if len(collections) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.subs {
		if e.sub.desc.OwnerID != owner || !collections[e.sub.desc.Collection] {
			continue
		}
		e.handler(n)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Disconnect drops every live subscription, closing their Lost channels.
// The hub keeps accepting new subscriptions.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	dropped := h.subs
	h.subs = make(map[uint64]entry)
	h.mu.Unlock()

	for _, e := range dropped {
		e.sub.markLost()
	}
	if len(dropped) > 0 {
		logger.Log.WithField("count", len(dropped)).Warn("Dropped realtime subscriptions")
	}
}

// Close drops every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Disconnect()
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}
