package relay

import (
	"testing"
	"time"
)

func waitForWatchers(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Watchers(sessionID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Watchers(%q) = %d, want %d", sessionID, hub.Watchers(sessionID), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHubScopesEventsToSession(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	clientA := NewClient(hub, nil, "session-a")
	clientB := NewClient(hub, nil, "session-b")
	hub.Register(clientA)
	hub.Register(clientB)
	waitForWatchers(t, hub, "session-a", 1)
	waitForWatchers(t, hub, "session-b", 1)

	hub.Publish(Event{SessionID: "session-a", Type: EventReady})

	select {
	case event := <-clientA.send:
		if event.Type != EventReady {
			t.Errorf("client A received %q, want %q", event.Type, EventReady)
		}
		if event.Timestamp.IsZero() {
			t.Error("published event has no timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client A never received the event")
	}

	select {
	case event := <-clientB.send:
		t.Fatalf("client B received %q for another session", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, "session-a")
	hub.Register(client)
	waitForWatchers(t, hub, "session-a", 1)

	hub.Unregister(client)
	waitForWatchers(t, hub, "session-a", 0)

	// The send channel is closed so the write pump unblocks.
	select {
	case _, open := <-client.send:
		if open {
			t.Error("send channel delivered an event after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed after unregister")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Nobody drains this client, so its buffer eventually fills.
	slow := NewClient(hub, nil, "session-a")
	hub.Register(slow)
	waitForWatchers(t, hub, "session-a", 1)

	for i := 0; i < cap(slow.send)+8; i++ {
		hub.Publish(Event{SessionID: "session-a", Type: EventQR})
	}

	waitForWatchers(t, hub, "session-a", 0)
}
