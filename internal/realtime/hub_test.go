package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
)

func TestHub_DeliversOwnerScoped(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()

	var aliceGot, bobGot []Notification
	subA, err := hub.Subscribe(ctx, Descriptor{Collection: "habits", OwnerID: alice}, func(n Notification) {
		aliceGot = append(aliceGot, n)
	})
	require.NoError(t, err)
	defer subA.Unsubscribe()
	subB, err := hub.Subscribe(ctx, Descriptor{Collection: "habits", OwnerID: bob}, func(n Notification) {
		bobGot = append(bobGot, n)
	})
	require.NoError(t, err)
	defer subB.Unsubscribe()

	hub.Publish(NewNotification("habits", primitive.NewObjectID(), OpCreate, alice, primitive.NilObjectID))

	assert.Len(t, aliceGot, 1)
	assert.Empty(t, bobGot)
}

func TestHub_FiltersByCollection(t *testing.T) {
	hub := NewHub()
	owner := primitive.NewObjectID()

	var habits, completions int
	_, err := hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: owner}, func(Notification) { habits++ })
	require.NoError(t, err)
	_, err = hub.Subscribe(context.Background(), Descriptor{Collection: "habit_completions", OwnerID: owner}, func(Notification) { completions++ })
	require.NoError(t, err)

	hub.Publish(NewNotification("habit_completions", primitive.NewObjectID(), OpCreate, owner, primitive.NewObjectID()))

	assert.Equal(t, 0, habits)
	assert.Equal(t, 1, completions)
}

func TestHub_DropsNotificationWithoutOwner(t *testing.T) {
	hub := NewHub()
	owner := primitive.NewObjectID()
	called := false
	_, err := hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: owner}, func(Notification) { called = true })
	require.NoError(t, err)

	hub.Publish(NewNotification("habits", primitive.NewObjectID(), OpDelete, primitive.NilObjectID, primitive.NilObjectID))
	assert.False(t, called)
}

func TestHub_SubscribeValidation(t *testing.T) {
	hub := NewHub()

	_, err := hub.Subscribe(context.Background(), Descriptor{Collection: "habits"}, func(Notification) {})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = hub.Subscribe(ctx, Descriptor{Collection: "habits", OwnerID: primitive.NewObjectID()}, func(Notification) {})
	assert.ErrorIs(t, err, context.Canceled)

	hub.Close()
	_, err = hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: primitive.NewObjectID()}, func(Notification) {})
	assert.ErrorIs(t, err, apperrors.ErrSubscriptionLost)
}

func TestHub_NoDeliveryAfterUnsubscribe(t *testing.T) {
	hub := NewHub()
	owner := primitive.NewObjectID()

	var unsubscribed atomic.Bool
	var lateDeliveries atomic.Int32
	sub, err := hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: owner}, func(Notification) {
		if unsubscribed.Load() {
			lateDeliveries.Add(1)
		}
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.Publish(NewNotification("habits", primitive.NewObjectID(), OpUpdate, owner, primitive.NilObjectID))
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	sub.Unsubscribe()
	unsubscribed.Store(true)
	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Zero(t, lateDeliveries.Load())
	assert.Equal(t, 0, hub.Subscribers())

	// idempotent
	sub.Unsubscribe()
}

func TestHub_DisconnectMarksLost(t *testing.T) {
	hub := NewHub()
	owner := primitive.NewObjectID()
	sub, err := hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: owner}, func(Notification) {})
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers())
	assert.Equal(t, Descriptor{Collection: "habits", OwnerID: owner}, sub.Descriptor())

	hub.Disconnect()

	select {
	case <-sub.Lost():
	case <-time.After(time.Second):
		t.Fatal("subscription not marked lost")
	}
	assert.Equal(t, 0, hub.Subscribers())

	// the hub still accepts new subscriptions after a drop
	_, err = hub.Subscribe(context.Background(), Descriptor{Collection: "habits", OwnerID: owner}, func(Notification) {})
	assert.NoError(t, err)
}

func TestDescriptor_String(t *testing.T) {
	owner := primitive.NewObjectID()
	d := Descriptor{Collection: "habits", OwnerID: owner}
	assert.Equal(t, "users."+owner.Hex()+".habits.documents", d.String())
}
