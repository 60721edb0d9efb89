// Package realtime is the change-notification channel: an owner-scoped,
// in-process fan-out of store changes to long-lived subscribers.
package realtime

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operation is the kind of change a notification reports.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Notification is what subscribers receive. Events hold strings of the form
// "{collection}.documents.{id}.{operation}" and the wildcard form
// "{collection}.documents.*.{operation}"; Payload is the changed document.
type Notification struct {
	Events  []string               `json:"events"`
	Payload map[string]interface{} `json:"payload"`
}

// Change is a parsed event string.
type Change struct {
	Collection string
	ResourceID string
	Operation  Operation
}

// EventName formats the event string for one change.
func EventName(collection, resourceID string, op Operation) string {
	return fmt.Sprintf("%s.documents.%s.%s", collection, resourceID, op)
}

// ParseEvent splits an event string. Wildcard ids parse with ResourceID "*".
func ParseEvent(event string) (Change, bool) {
	parts := strings.Split(event, ".")
	if len(parts) != 4 || parts[1] != "documents" || parts[0] == "" || parts[2] == "" {
		return Change{}, false
	}
	op := Operation(parts[3])
	if !op.valid() {
		return Change{}, false
	}
	return Change{Collection: parts[0], ResourceID: parts[2], Operation: op}, true
}

// NewNotification builds the notification published for one document change.
// owner and habit may be zero when the payload does not carry them.
func NewNotification(collection string, resourceID primitive.ObjectID, op Operation, owner, habit primitive.ObjectID) Notification {
	payload := map[string]interface{}{"_id": resourceID.Hex()}
	if !owner.IsZero() {
		payload["user_id"] = owner.Hex()
	}
	if !habit.IsZero() {
		payload["habit_id"] = habit.Hex()
	}
	return Notification{
		Events: []string{
			EventName(collection, resourceID.Hex(), op),
			EventName(collection, "*", op),
		},
		Payload: payload,
	}
}

// Changes returns the specific (non-wildcard) changes of a notification.
func (n Notification) Changes() []Change {
	var out []Change
	for _, e := range n.Events {
		c, ok := ParseEvent(e)
		if !ok || c.ResourceID == "*" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PayloadID reads a hex ObjectID field from the payload.
func (n Notification) PayloadID(field string) (primitive.ObjectID, bool) {
	raw, ok := n.Payload[field]
	if !ok {
		return primitive.NilObjectID, false
	}
	switch v := raw.(type) {
	case primitive.ObjectID:
		return v, !v.IsZero()
	case string:
		id, err := primitive.ObjectIDFromHex(v)
		return id, err == nil
	}
	return primitive.NilObjectID, false
}
