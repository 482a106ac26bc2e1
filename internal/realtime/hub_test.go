package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultsim/vaultd/libs/events"
)

func dialHub(t *testing.T, hub *Hub, workspaceID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, workspaceID)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Wait for the hub to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(workspaceID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func TestHubDeliversToWorkspaceGroup(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dialHub(t, hub, "ws-1")

	env, err := events.EntitiesChanged("ws-1")
	if err != nil {
		t.Fatalf("EntitiesChanged: %v", err)
	}
	if err := hub.Notify(context.Background(), "ws-1", env); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got events.Envelope
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != events.TypeEntitiesChanged || got.WorkspaceID != "ws-1" {
		t.Fatalf("unexpected envelope %+v", got)
	}
}

func TestHubScopesByWorkspace(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := dialHub(t, hub, "ws-2")

	env, err := events.EntitiesChanged("ws-1")
	if err != nil {
		t.Fatalf("EntitiesChanged: %v", err)
	}
	if err := hub.Notify(context.Background(), "ws-1", env); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no delivery to another workspace's group")
	}
}

func TestHubNotifyWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	env, err := events.EntitiesChanged("ws-1")
	if err != nil {
		t.Fatalf("EntitiesChanged: %v", err)
	}
	if err := hub.Notify(context.Background(), "ws-1", env); err != nil {
		t.Fatalf("Notify with no subscribers must be a no-op, got %v", err)
	}
}
