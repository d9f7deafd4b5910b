package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	qrCode "github.com/skip2/go-qrcode"

	"wablast/pkg/log"
	"wablast/pkg/relay"
)

// State is the lifecycle state of a connection handle.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingScan
	StateAuthenticating
	StateReady
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Coarse maps the fine lifecycle state onto the four states the status
// endpoint reports.
func (s State) Coarse() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingScan, StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Handle owns one automation client instance and translates its asynchronous
// lifecycle callbacks into the state machine above. All state mutation runs
// through apply under one mutex.
type Handle struct {
	sessionID     string
	client        AutomationClient
	publisher     relay.Publisher
	credentialDir string
	createdAt     time.Time

	mu            sync.Mutex
	state         State
	qrCode        string
	authenticated bool
	initErr       error
	initSettled   bool
	initDone      chan struct{}

	cleanupOnce sync.Once
}

func newHandle(sessionID string, client AutomationClient, publisher relay.Publisher, credentialDir string) *Handle {
	return &Handle{
		sessionID:     sessionID,
		client:        client,
		publisher:     publisher,
		credentialDir: credentialDir,
		createdAt:     time.Now(),
		state:         StateUninitialized,
		initDone:      make(chan struct{}),
	}
}

func (h *Handle) SessionID() string {
	return h.sessionID
}

func (h *Handle) CreatedAt() time.Time {
	return h.createdAt
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// QRCode returns the last issued QR payload, present only while awaiting scan.
func (h *Handle) QRCode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.qrCode
}

func (h *Handle) Authenticated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authenticated
}

// Initialize connects the automation client and starts translating its
// events. It returns as soon as the connection attempt is underway; callers
// wait for the outcome with WaitReady.
func (h *Handle) Initialize(ctx context.Context) error {
	if err := h.client.Start(ctx, h.apply); err != nil {
		h.apply(LifecycleEvent{Kind: EventAuthFailure, Reason: err.Error()})
		return err
	}
	return nil
}

// WaitReady blocks until the first Ready transition (nil) or a terminal
// Disconnected/Failed before Ready (error). The outcome settles exactly once.
func (h *Handle) WaitReady(ctx context.Context) error {
	select {
	case <-h.initDone:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply is the single mutation point of the state machine. Out-of-order
// events from the automation client are logged and dropped instead of
// overwriting state.
func (h *Handle) apply(evt LifecycleEvent) {
	h.mu.Lock()

	var publish *relay.Event
	var settleErr error
	settle := false
	cleanup := false

	switch evt.Kind {
	case EventQRCode:
		if h.state != StateUninitialized && h.state != StateAwaitingScan {
			h.dropEventLocked("qr", evt)
			h.mu.Unlock()
			return
		}
		h.state = StateAwaitingScan
		h.qrCode = evt.QRCode
		publish = &relay.Event{
			Type:    relay.EventQR,
			Payload: qrPayload(evt),
		}

	case EventAuthenticated:
		if h.state != StateUninitialized && h.state != StateAwaitingScan {
			h.dropEventLocked("authenticated", evt)
			h.mu.Unlock()
			return
		}
		h.state = StateAuthenticating
		h.qrCode = ""
		h.authenticated = true
		publish = &relay.Event{Type: relay.EventAuthenticated}

	case EventReady:
		if h.state == StateReady {
			h.mu.Unlock()
			return
		}
		if h.state == StateDisconnected || h.state == StateFailed {
			h.dropEventLocked("ready", evt)
			h.mu.Unlock()
			return
		}
		h.state = StateReady
		h.qrCode = ""
		h.authenticated = true
		publish = &relay.Event{Type: relay.EventReady}
		settle = true

	case EventDisconnected:
		if h.state == StateDisconnected {
			h.mu.Unlock()
			return
		}
		h.state = StateDisconnected
		h.qrCode = ""
		publish = &relay.Event{
			Type:    relay.EventDisconnected,
			Payload: map[string]string{"reason": evt.Reason},
		}
		settle = true
		settleErr = ErrSessionDisconnected
		cleanup = true

	case EventAuthFailure:
		if h.state == StateDisconnected || h.state == StateFailed {
			h.mu.Unlock()
			return
		}
		h.state = StateFailed
		h.qrCode = ""
		publish = &relay.Event{
			Type:    relay.EventAuthFailure,
			Payload: map[string]string{"message": evt.Reason},
		}
		settle = true
		settleErr = authFailureError(evt.Reason)
		cleanup = true
	}

	if settle && !h.initSettled {
		h.initSettled = true
		h.initErr = settleErr
		close(h.initDone)
	}
	state := h.state
	h.mu.Unlock()

	log.Session(h.sessionID).WithField("state", state.String()).Info("Session state changed")

	if publish != nil && h.publisher != nil {
		publish.SessionID = h.sessionID
		h.publisher.Publish(*publish)
	}

	if cleanup {
		h.releaseResources()
	}
}

func (h *Handle) dropEventLocked(kind string, evt LifecycleEvent) {
	log.Session(h.sessionID).
		WithField("event", kind).
		WithField("state", h.state.String()).
		Warn("Dropping out-of-order lifecycle event")
}

func authFailureError(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrSessionDisconnected
	}
	return fmt.Errorf("%w: %s", ErrSessionDisconnected, reason)
}

// qrPayload carries both the raw QR text and a scannable PNG data URI.
func qrPayload(evt LifecycleEvent) map[string]interface{} {
	payload := map[string]interface{}{
		"code":            evt.QRCode,
		"timeout_seconds": int(evt.Timeout.Seconds()),
	}
	if png, err := qrCode.Encode(evt.QRCode, qrCode.Medium, 256); err == nil {
		payload["image"] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	return payload
}

func (h *Handle) guardSend() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateReady:
		return nil
	case StateDisconnected, StateFailed:
		return ErrSessionDisconnected
	default:
		return ErrSessionNotReady
	}
}

// SendText delivers a text message to one recipient. Blank text is a no-op.
func (h *Handle) SendText(ctx context.Context, recipient string, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := h.guardSend(); err != nil {
		return err
	}

	chatID := ComposeChatAddress(recipient)
	if err := h.client.SendText(ctx, chatID, text); err != nil {
		return &DeliveryError{Recipient: recipient, Err: err}
	}
	return nil
}

// SendFile delivers one attachment to one recipient, with document semantics
// for non-media MIME types.
func (h *Handle) SendFile(ctx context.Context, recipient string, attachment Attachment, caption string) error {
	if err := h.guardSend(); err != nil {
		return err
	}

	chatID := ComposeChatAddress(recipient)
	if err := h.client.SendFile(ctx, chatID, attachment, caption); err != nil {
		return &DeliveryError{Recipient: recipient, Item: attachment.Name, Err: err}
	}
	return nil
}

// Logout instructs the automation client to log out remotely and always
// releases local resources. A remote failure is surfaced to the caller after
// local cleanup has run.
func (h *Handle) Logout(ctx context.Context) error {
	remoteErr := h.client.Logout(ctx)

	h.apply(LifecycleEvent{Kind: EventDisconnected, Reason: "logged out"})

	return remoteErr
}

// teardown makes the handle unusable and deletes local credential artifacts.
// Safe to call more than once.
func (h *Handle) teardown() {
	h.mu.Lock()
	if h.state != StateDisconnected && h.state != StateFailed {
		h.state = StateDisconnected
		h.qrCode = ""
	}
	if !h.initSettled {
		h.initSettled = true
		h.initErr = ErrSessionDisconnected
		close(h.initDone)
	}
	h.mu.Unlock()

	h.releaseResources()
}

func (h *Handle) releaseResources() {
	h.cleanupOnce.Do(func() {
		h.client.Close()
		if h.credentialDir != "" {
			if err := os.RemoveAll(h.credentialDir); err != nil {
				log.Session(h.sessionID).WithError(err).Error("Failed to remove credential directory")
			}
		}
	})
}
