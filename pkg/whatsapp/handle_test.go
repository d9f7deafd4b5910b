package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wablast/pkg/relay"
)

type sentText struct {
	ChatID string
	Text   string
}

type sentFile struct {
	ChatID  string
	Name    string
	Caption string
}

// fakeClient is an in-memory AutomationClient. Tests drive the lifecycle by
// calling the emit callback captured from Start.
type fakeClient struct {
	mu       sync.Mutex
	emit     func(LifecycleEvent)
	startErr error
	sendErr  error
	texts    []sentText
	files    []sentFile
	logouts  int
	closed   bool
}

func (f *fakeClient) Start(ctx context.Context, emit func(LifecycleEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.emit = emit
	return nil
}

func (f *fakeClient) SendText(ctx context.Context, chatID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeClient) SendFile(ctx context.Context, chatID string, attachment Attachment, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.files = append(f.files, sentFile{ChatID: chatID, Name: attachment.Name, Caption: caption})
	return nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) sentTexts() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

func (f *fakeClient) sentFiles() []sentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFile(nil), f.files...)
}

// capturePublisher records relay events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []relay.Event
}

func (p *capturePublisher) Publish(event relay.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byType(eventType string) []relay.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []relay.Event
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestHandle(t *testing.T) (*Handle, *fakeClient, *capturePublisher) {
	t.Helper()
	client := &fakeClient{}
	publisher := &capturePublisher{}
	handle := newHandle("test-session", client, publisher, "")
	if err := handle.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	return handle, client, publisher
}

func TestHandleLifecycleToReady(t *testing.T) {
	handle, client, publisher := newTestHandle(t)

	if got := handle.State(); got != StateUninitialized {
		t.Fatalf("initial state = %v, want %v", got, StateUninitialized)
	}

	client.emit(LifecycleEvent{Kind: EventQRCode, QRCode: "qr-data-1", Timeout: 20 * time.Second})
	if got := handle.State(); got != StateAwaitingScan {
		t.Fatalf("state after qr = %v, want %v", got, StateAwaitingScan)
	}
	if got := handle.QRCode(); got != "qr-data-1" {
		t.Fatalf("QRCode() = %q, want %q", got, "qr-data-1")
	}

	// A refreshed QR replaces the previous one without changing state.
	client.emit(LifecycleEvent{Kind: EventQRCode, QRCode: "qr-data-2", Timeout: 20 * time.Second})
	if got := handle.QRCode(); got != "qr-data-2" {
		t.Fatalf("QRCode() after refresh = %q, want %q", got, "qr-data-2")
	}
	if got := handle.State(); got != StateAwaitingScan {
		t.Fatalf("state after qr refresh = %v, want %v", got, StateAwaitingScan)
	}

	client.emit(LifecycleEvent{Kind: EventAuthenticated})
	if got := handle.State(); got != StateAuthenticating {
		t.Fatalf("state after authenticated = %v, want %v", got, StateAuthenticating)
	}
	if got := handle.QRCode(); got != "" {
		t.Fatalf("QRCode() after authenticated = %q, want empty", got)
	}

	client.emit(LifecycleEvent{Kind: EventReady})
	if got := handle.State(); got != StateReady {
		t.Fatalf("state after ready = %v, want %v", got, StateReady)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handle.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady returned error: %v", err)
	}

	if got := len(publisher.byType(relay.EventQR)); got != 2 {
		t.Errorf("published %d qr events, want 2", got)
	}
	if got := len(publisher.byType(relay.EventReady)); got != 1 {
		t.Errorf("published %d ready events, want 1", got)
	}
}

func TestHandleDisconnectBeforeReadyFailsWait(t *testing.T) {
	handle, client, _ := newTestHandle(t)

	client.emit(LifecycleEvent{Kind: EventQRCode, QRCode: "qr-data"})
	client.emit(LifecycleEvent{Kind: EventDisconnected, Reason: "connection closed"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := handle.WaitReady(ctx)
	if !errors.Is(err, ErrSessionDisconnected) {
		t.Fatalf("WaitReady error = %v, want ErrSessionDisconnected", err)
	}
	if got := handle.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want %v", got, StateDisconnected)
	}
	if !client.closed {
		t.Error("client was not closed after disconnect")
	}
}

func TestHandleReadyOutcomeIsStable(t *testing.T) {
	handle, client, _ := newTestHandle(t)

	client.emit(LifecycleEvent{Kind: EventReady})
	client.emit(LifecycleEvent{Kind: EventDisconnected, Reason: "connection closed"})

	// The first settled outcome wins even though the session dropped later.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handle.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady after ready-then-disconnect = %v, want nil", err)
	}
	if got := handle.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want %v", got, StateDisconnected)
	}
}

func TestHandleDropsOutOfOrderEvents(t *testing.T) {
	handle, client, publisher := newTestHandle(t)

	client.emit(LifecycleEvent{Kind: EventReady})

	// A stale QR after ready must not regress the state.
	client.emit(LifecycleEvent{Kind: EventQRCode, QRCode: "stale"})
	if got := handle.State(); got != StateReady {
		t.Fatalf("state after stale qr = %v, want %v", got, StateReady)
	}
	if got := handle.QRCode(); got != "" {
		t.Fatalf("QRCode() after stale qr = %q, want empty", got)
	}
	if got := len(publisher.byType(relay.EventQR)); got != 0 {
		t.Errorf("published %d qr events after ready, want 0", got)
	}

	// A ready event after a terminal disconnect is dropped too.
	client.emit(LifecycleEvent{Kind: EventDisconnected, Reason: "connection closed"})
	client.emit(LifecycleEvent{Kind: EventReady})
	if got := handle.State(); got != StateDisconnected {
		t.Fatalf("state after late ready = %v, want %v", got, StateDisconnected)
	}
}

func TestHandleSendGuards(t *testing.T) {
	handle, client, _ := newTestHandle(t)
	ctx := context.Background()

	if err := handle.SendText(ctx, "628112233", "hello"); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("SendText before ready = %v, want ErrSessionNotReady", err)
	}

	client.emit(LifecycleEvent{Kind: EventReady})
	if err := handle.SendText(ctx, "628112233", "hello"); err != nil {
		t.Fatalf("SendText when ready = %v, want nil", err)
	}

	// Blank text is a silent no-op.
	if err := handle.SendText(ctx, "628112233", "   "); err != nil {
		t.Fatalf("SendText with blank text = %v, want nil", err)
	}
	if got := len(client.sentTexts()); got != 1 {
		t.Fatalf("client received %d texts, want 1", got)
	}

	client.emit(LifecycleEvent{Kind: EventDisconnected, Reason: "connection closed"})
	if err := handle.SendText(ctx, "628112233", "hello"); !errors.Is(err, ErrSessionDisconnected) {
		t.Fatalf("SendText after disconnect = %v, want ErrSessionDisconnected", err)
	}
	if err := handle.SendFile(ctx, "628112233", Attachment{Name: "a.pdf"}, ""); !errors.Is(err, ErrSessionDisconnected) {
		t.Fatalf("SendFile after disconnect = %v, want ErrSessionDisconnected", err)
	}
}

func TestHandleSendWrapsDeliveryError(t *testing.T) {
	handle, client, _ := newTestHandle(t)
	client.emit(LifecycleEvent{Kind: EventReady})

	sendFailure := errors.New("transport broke")
	client.mu.Lock()
	client.sendErr = sendFailure
	client.mu.Unlock()

	err := handle.SendText(context.Background(), "628112233", "hello")
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("SendText error = %T, want *DeliveryError", err)
	}
	if deliveryErr.Recipient != "628112233" {
		t.Errorf("DeliveryError.Recipient = %q, want %q", deliveryErr.Recipient, "628112233")
	}
	if !errors.Is(err, sendFailure) {
		t.Error("DeliveryError does not unwrap to the transport error")
	}
}

func TestHandleLogoutTearsDown(t *testing.T) {
	handle, client, publisher := newTestHandle(t)
	client.emit(LifecycleEvent{Kind: EventReady})

	if err := handle.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if got := handle.State(); got != StateDisconnected {
		t.Fatalf("state after logout = %v, want %v", got, StateDisconnected)
	}
	if client.logouts != 1 {
		t.Errorf("client logouts = %d, want 1", client.logouts)
	}
	if !client.closed {
		t.Error("client was not closed after logout")
	}
	if got := len(publisher.byType(relay.EventDisconnected)); got != 1 {
		t.Errorf("published %d disconnected events, want 1", got)
	}
}

func TestComposeChatAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"628112233445", "628112233445@s.whatsapp.net"},
		{"+628112233445", "628112233445@s.whatsapp.net"},
		{"628112233445@s.whatsapp.net", "628112233445@s.whatsapp.net"},
		{"12036302@g.us", "12036302@g.us"},
	}
	for _, tt := range tests {
		if got := ComposeChatAddress(tt.in); got != tt.want {
			t.Errorf("ComposeChatAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateCoarse(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateAwaitingScan, "authenticating"},
		{StateAuthenticating, "authenticating"},
		{StateReady, "ready"},
		{StateDisconnected, "disconnected"},
		{StateFailed, "disconnected"},
	}
	for _, tt := range tests {
		if got := tt.state.Coarse(); got != tt.want {
			t.Errorf("%v.Coarse() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
