package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// ChangeStreamFeeder watches MongoDB collections and republishes their
// changes on a Publisher, so that writes made by other server instances
// reach local viewing sessions. Requires a replica set.
type ChangeStreamFeeder struct {
	db          *mongo.Database
	publisher   Publisher
	collections []string
	// HabitCollection names the collection whose document id is the habit id.
	HabitCollection string
}

func NewChangeStreamFeeder(db *mongo.Database, publisher Publisher, habitCollection string, collections ...string) *ChangeStreamFeeder {
	return &ChangeStreamFeeder{
		db:              db,
		publisher:       publisher,
		collections:     collections,
		HabitCollection: habitCollection,
	}
}

// Run watches every collection until ctx is cancelled, reconnecting with
// backoff when a stream fails.
func (f *ChangeStreamFeeder) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, coll := range f.collections {
		wg.Add(1)
		go func(coll string) {
			defer wg.Done()
			f.watchLoop(ctx, coll)
		}(coll)
	}
	wg.Wait()
}

func (f *ChangeStreamFeeder) watchLoop(ctx context.Context, coll string) {
	b := DefaultBackoff()
	log := logger.Log.WithField("collection", coll)

	op := func() error {
		err := f.watch(ctx, coll, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Warn("Change stream interrupted, reconnecting")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Change stream stopped")
	}
}

func (f *ChangeStreamFeeder) watch(ctx context.Context, coll string, b backoff.BackOff) error {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := f.db.Collection(coll).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	logger.Log.WithField("collection", coll).Info("Change stream opened")
	b.Reset()

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			logger.Log.WithError(err).Warn("Failed to decode change event")
			continue
		}
		if n, ok := ev.notification(coll, f.HabitCollection); ok {
			f.publisher.Publish(n)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("change stream closed")
}

// EnablePreImages turns on change-stream pre-images for collections, creating
// them when missing. Without pre-images a delete event carries no owner and
// cannot be routed. Requires MongoDB 6.0 or newer.
func EnablePreImages(ctx context.Context, db *mongo.Database, collections ...string) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$in": collections}})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, coll := range collections {
		if !have[coll] {
			if err := db.CreateCollection(ctx, coll); err != nil && !isNamespaceExists(err) {
				return fmt.Errorf("failed to create collection %s: %w", coll, err)
			}
		}
		cmd := bson.D{
			{Key: "collMod", Value: coll},
			{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
		}
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("failed to enable pre-images on %s: %w", coll, err)
		}
	}
	return nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

func (ev changeEvent) notification(coll, habitCollection string) (Notification, bool) {
	var op Operation
	switch ev.OperationType {
	case "insert":
		op = OpCreate
	case "update", "replace":
		op = OpUpdate
	case "delete":
		op = OpDelete
	default:
		return Notification{}, false
	}

	doc := ev.FullDocument
	if doc == nil {
		doc = ev.FullDocumentBeforeChange
	}
	owner, _ := doc["user_id"].(primitive.ObjectID)
	habit, _ := doc["habit_id"].(primitive.ObjectID)
	if coll == habitCollection {
		habit = ev.DocumentKey.ID
	}
	if owner.IsZero() {
		// deletes without pre-images cannot be routed to an owner
		return Notification{}, false
	}
	return NewNotification(coll, ev.DocumentKey.ID, op, owner, habit), true
}
