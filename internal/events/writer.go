package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	StoryCreated                = "story.created"
	StoryUpdated                = "story.updated"
	StoryDeleted                = "story.deleted"
	StoryAssigned               = "story.assigned"
	StoryStatusChanged          = "story.status.changed"
	StorySpecificationGenerated = "story.specification.generated"
	StoryDesignSet              = "story.design.set"
	StoryDesignElaborated       = "story.design.elaborated"
	TaskCreated                 = "task.created"
	TaskStatusChanged           = "task.status.changed"
	TaskAssigned                = "task.assigned"
	TaskDeleted                 = "task.deleted"
	APIKeyCreated               = "apikey.created"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one audit row inside tx so it commits or rolls back with the mutation.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
