package whatsapp

import (
	"context"
	"path/filepath"
	"sync"

	"wablast/pkg/log"
	"wablast/pkg/relay"
)

// ClientFactory builds the automation client for a new session and reports
// the credential directory it was given, so the handle can delete it later.
type ClientFactory func(sessionID string) (AutomationClient, string, error)

// NewMeowFactory returns the production factory. Each session gets its own
// credential directory under sessionsDir.
func NewMeowFactory(sessionsDir string) ClientFactory {
	return func(sessionID string) (AutomationClient, string, error) {
		credentialDir := filepath.Join(sessionsDir, "session-"+sessionID)
		client, err := NewAutomationClient(sessionID, credentialDir)
		if err != nil {
			return nil, "", err
		}
		return client, credentialDir, nil
	}
}

// Registry maps session ids to their connection handles. One registry serves
// the whole process.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	factory   ClientFactory
	publisher relay.Publisher
}

func NewRegistry(factory ClientFactory, publisher relay.Publisher) *Registry {
	return &Registry{
		handles:   make(map[string]*Handle),
		factory:   factory,
		publisher: publisher,
	}
}

// Create reserves the session id and builds its handle. A second Create for a
// live id fails with ErrSessionExists and leaves the existing handle alone.
func (r *Registry) Create(sessionID string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[sessionID]; ok {
		return nil, ErrSessionExists
	}

	client, credentialDir, err := r.factory(sessionID)
	if err != nil {
		return nil, err
	}

	handle := newHandle(sessionID, client, r.publisher, credentialDir)
	r.handles[sessionID] = handle

	log.Session(sessionID).Info("Session registered")
	return handle, nil
}

// Get returns the handle for a session id, or nil when none is registered.
func (r *Registry) Get(sessionID string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[sessionID]
}

// Destroy removes the session and releases its resources. Destroying an
// absent id is a no-op.
func (r *Registry) Destroy(sessionID string) {
	r.mu.Lock()
	handle, ok := r.handles[sessionID]
	if ok {
		delete(r.handles, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	handle.teardown()
	log.Session(sessionID).Info("Session removed")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Range calls fn for every registered handle over a snapshot, so fn may call
// back into the registry.
func (r *Registry) Range(fn func(sessionID string, handle *Handle)) {
	r.mu.RLock()
	snapshot := make(map[string]*Handle, len(r.handles))
	for id, handle := range r.handles {
		snapshot[id] = handle
	}
	r.mu.RUnlock()

	for id, handle := range snapshot {
		fn(id, handle)
	}
}

// Shutdown logs out and tears down every session. Used on process exit.
func (r *Registry) Shutdown(ctx context.Context) {
	r.Range(func(sessionID string, handle *Handle) {
		if err := handle.Logout(ctx); err != nil {
			log.Session(sessionID).WithError(err).Warn("Remote logout failed during shutdown")
		}
		r.Destroy(sessionID)
	})
}
