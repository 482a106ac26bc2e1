package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeEntityUpserted  = "entity.upserted"
	TypeEntitiesChanged = "entities.changed"
)

// Envelope is the wire shape of a realtime notification. Delivery is
// advisory and at-most-once; consumers re-fetch full state on reconnect.
type Envelope struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id"`
	EntityType  string    `json:"entity_type,omitempty"`
	Entity      any       `json:"entity,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEnvelope(eventType, workspaceID string) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event_type is required")
	}
	if workspaceID == "" {
		return Envelope{}, fmt.Errorf("workspace_id is required")
	}
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		WorkspaceID: workspaceID,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func EntityUpserted(workspaceID, entityType string, entity any) (Envelope, error) {
	env, err := NewEnvelope(TypeEntityUpserted, workspaceID)
	if err != nil {
		return Envelope{}, err
	}
	if entityType == "" {
		return Envelope{}, fmt.Errorf("entity_type is required")
	}
	env.EntityType = entityType
	env.Entity = entity
	return env, nil
}

func EntitiesChanged(workspaceID string) (Envelope, error) {
	return NewEnvelope(TypeEntitiesChanged, workspaceID)
}

func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
