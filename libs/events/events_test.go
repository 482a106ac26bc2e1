package events

import "testing"

func TestEntityUpserted(t *testing.T) {
	env, err := EntityUpserted("ws-1", "transaction", map[string]string{"id": "tx-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != TypeEntityUpserted {
		t.Fatalf("expected %s, got %s", TypeEntityUpserted, env.EventType)
	}
	if env.WorkspaceID != "ws-1" {
		t.Fatalf("expected workspace ws-1, got %s", env.WorkspaceID)
	}
	if env.EventID == "" || env.Timestamp.IsZero() {
		t.Fatalf("expected populated id and timestamp")
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEntityUpsertedRequiresEntityType(t *testing.T) {
	if _, err := EntityUpserted("ws-1", "", nil); err == nil {
		t.Fatalf("expected error for missing entity type")
	}
}

func TestEntitiesChangedRequiresWorkspace(t *testing.T) {
	if _, err := EntitiesChanged(""); err == nil {
		t.Fatalf("expected error for missing workspace")
	}
}
