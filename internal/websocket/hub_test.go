package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func newTestClient(hub *Hub, teamID int64) *Client {
	return NewClient(hub, nil, teamID)
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("event", "created", 42, map[string]any{"event_id": int64(7)})
	if msg.Type != "event_created" {
		t.Errorf("Type = %q, want event_created", msg.Type)
	}
	if msg.Entity != "event" || msg.Action != "created" || msg.ID != 42 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestBroadcastScopedToTeam(t *testing.T) {
	hub := NewHub(slog.Default())

	a1 := newTestClient(hub, 1)
	a2 := newTestClient(hub, 1)
	b := newTestClient(hub, 2)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)

	hub.BroadcastTeam(1, NewMessage("task", "updated", 9, nil))

	for _, c := range []*Client{a1, a2} {
		msg := receive(t, c)
		if msg.Type != "task_updated" || msg.ID != 9 {
			t.Errorf("msg = %+v", msg)
		}
	}

	select {
	case data := <-b.send:
		t.Errorf("other team received broadcast: %s", data)
	default:
	}
}

func TestBroadcastToEmptyRoom(t *testing.T) {
	hub := NewHub(slog.Default())
	// A team with no connected clients must not panic or block.
	hub.BroadcastTeam(99, NewMessage("event", "deleted", 1, nil))
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := newTestClient(hub, 1)
	c2 := newTestClient(hub, 1)
	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(1); got != 2 {
		t.Fatalf("ClientCount = %d, want 2", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(1); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
	if _, open := <-c1.send; open {
		t.Error("send channel not closed on unregister")
	}

	// Double unregister must be a no-op.
	hub.Unregister(c1)

	hub.BroadcastTeam(1, NewMessage("deal", "created", 3, nil))
	msg := receive(t, c2)
	if msg.Type != "deal_created" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestNotifyTeam(t *testing.T) {
	hub := NewHub(slog.Default())
	c := newTestClient(hub, 5)
	hub.Register(c)

	hub.NotifyTeam(5, "subscription", "updated")

	msg := receive(t, c)
	if msg.Type != "subscription_updated" || msg.ID != 0 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())
	c := newTestClient(hub, 1)
	hub.Register(c)

	// Nothing drains the channel; overflow must drop instead of blocking.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.BroadcastTeam(1, NewMessage("event", "updated", int64(i), nil))
	}
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}
