package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func fakeFactory(clients map[string]*fakeClient) ClientFactory {
	var mu sync.Mutex
	return func(sessionID string) (AutomationClient, string, error) {
		client := &fakeClient{}
		if clients != nil {
			mu.Lock()
			clients[sessionID] = client
			mu.Unlock()
		}
		return client, "", nil
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	registry := NewRegistry(fakeFactory(nil), nil)

	handle, err := registry.Create("session-a")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if handle.SessionID() != "session-a" {
		t.Errorf("SessionID() = %q, want %q", handle.SessionID(), "session-a")
	}
	if got := registry.Get("session-a"); got != handle {
		t.Error("Get returned a different handle")
	}
	if got := registry.Get("missing"); got != nil {
		t.Errorf("Get for missing id = %v, want nil", got)
	}
	if got := registry.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestRegistryRejectsDuplicateCreate(t *testing.T) {
	registry := NewRegistry(fakeFactory(nil), nil)

	original, err := registry.Create("session-a")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := registry.Create("session-a"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("duplicate Create error = %v, want ErrSessionExists", err)
	}

	// The original registration is untouched.
	if got := registry.Get("session-a"); got != original {
		t.Error("duplicate Create replaced the original handle")
	}
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	clients := make(map[string]*fakeClient)
	registry := NewRegistry(fakeFactory(clients), nil)

	if _, err := registry.Create("session-a"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	registry.Destroy("session-a")
	if got := registry.Get("session-a"); got != nil {
		t.Error("handle still registered after Destroy")
	}
	if !clients["session-a"].closed {
		t.Error("client was not closed by Destroy")
	}

	// Destroying again, or an unknown id, is a no-op.
	registry.Destroy("session-a")
	registry.Destroy("never-existed")

	// The id is free for a fresh registration.
	if _, err := registry.Create("session-a"); err != nil {
		t.Fatalf("Create after Destroy returned error: %v", err)
	}
}

func TestRegistryConcurrentCreateSameID(t *testing.T) {
	registry := NewRegistry(fakeFactory(nil), nil)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := registry.Create("contested"); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("%d creates succeeded for one id, want exactly 1", created)
	}
	if got := registry.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestRegistryShutdownRemovesAll(t *testing.T) {
	clients := make(map[string]*fakeClient)
	registry := NewRegistry(fakeFactory(clients), nil)

	for _, id := range []string{"a", "b", "c"} {
		if _, err := registry.Create(id); err != nil {
			t.Fatalf("Create(%q) returned error: %v", id, err)
		}
	}

	registry.Shutdown(context.Background())

	if got := registry.Len(); got != 0 {
		t.Errorf("Len() after Shutdown = %d, want 0", got)
	}
	for id, client := range clients {
		if client.logouts != 1 {
			t.Errorf("client %q logouts = %d, want 1", id, client.logouts)
		}
		if !client.closed {
			t.Errorf("client %q was not closed", id)
		}
	}
}
