package whatsapp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wablast/pkg/log"
)

const logoutRequestTimeout = 30 * time.Second

// EventKind enumerates the lifecycle notifications the automation client
// reports to its connection handle.
type EventKind int

const (
	EventQRCode EventKind = iota
	EventAuthenticated
	EventReady
	EventDisconnected
	EventAuthFailure
)

type LifecycleEvent struct {
	Kind    EventKind
	QRCode  string
	Timeout time.Duration
	Reason  string
}

// AutomationClient is the boundary to the underlying WhatsApp automation
// library. Exactly one connection handle owns each instance; the handle is
// the only caller.
type AutomationClient interface {
	// Start connects the client and begins streaming lifecycle events into
	// emit. It returns once the connection attempt is underway.
	Start(ctx context.Context, emit func(LifecycleEvent)) error
	SendText(ctx context.Context, chatID string, text string) error
	SendFile(ctx context.Context, chatID string, attachment Attachment, caption string) error
	Logout(ctx context.Context) error
	Close()
}

// ComposeChatAddress normalizes a recipient into the chat identifier the
// transport expects. Raw identifiers containing an "@" pass through, bare
// numbers get the individual-chat domain suffix.
func ComposeChatAddress(recipient string) string {
	if len(recipient) > 0 && recipient[0] == '+' {
		recipient = recipient[1:]
	}
	for _, r := range recipient {
		if r == '@' {
			return recipient
		}
	}
	return recipient + "@" + types.DefaultUserServer
}

// meowClient drives one whatsmeow client over a per-session SQLite
// credential store.
type meowClient struct {
	sessionID string
	container *sqlstore.Container
	client    *whatsmeow.Client
	handlerID uint32
}

// NewAutomationClient opens the credential store inside credentialDir and
// builds the whatsmeow client on top of it.
func NewAutomationClient(sessionID string, credentialDir string) (AutomationClient, error) {
	if err := os.MkdirAll(credentialDir, 0o755); err != nil {
		return nil, err
	}

	ctx := context.Background()
	dsn := "file:" + filepath.Join(credentialDir, "store.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	container, err := sqlstore.New(ctx, "sqlite", dsn, nil)
	if err != nil {
		return nil, err
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, err
	}

	device := container.NewDevice()
	client := whatsmeow.NewClient(device, nil)

	// A dropped connection is a terminal disconnect for the session, the
	// same way the browser-automation client treats it. No silent retry.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	return &meowClient{
		sessionID: sessionID,
		container: container,
		client:    client,
	}, nil
}

func (m *meowClient) Start(ctx context.Context, emit func(LifecycleEvent)) error {
	m.handlerID = m.client.AddEventHandler(func(evt interface{}) {
		switch e := evt.(type) {
		case *events.PairSuccess:
			emit(LifecycleEvent{Kind: EventAuthenticated})
		case *events.Connected:
			emit(LifecycleEvent{Kind: EventReady})
		case *events.LoggedOut:
			emit(LifecycleEvent{Kind: EventDisconnected, Reason: "logged out from phone"})
		case *events.StreamReplaced:
			emit(LifecycleEvent{Kind: EventDisconnected, Reason: "stream replaced by another connection"})
		case *events.Disconnected:
			emit(LifecycleEvent{Kind: EventDisconnected, Reason: "connection closed"})
		case *events.ConnectFailure:
			emit(LifecycleEvent{Kind: EventAuthFailure, Reason: e.Message})
		case *events.TemporaryBan:
			emit(LifecycleEvent{Kind: EventAuthFailure, Reason: "temporarily banned: " + e.Code.String()})
		}
	})

	if m.client.Store.ID == nil {
		qrChan, err := m.client.GetQRChannel(ctx)
		if err != nil {
			return err
		}
		if err := m.client.Connect(); err != nil {
			return err
		}
		go m.pumpQRChannel(qrChan, emit)
		return nil
	}

	return m.client.Connect()
}

func (m *meowClient) pumpQRChannel(qrChan <-chan whatsmeow.QRChannelItem, emit func(LifecycleEvent)) {
	for item := range qrChan {
		switch {
		case item.Event == "code":
			emit(LifecycleEvent{Kind: EventQRCode, QRCode: item.Code, Timeout: item.Timeout})
		case item.Event == whatsmeow.QRChannelSuccess.Event:
			// Pairing completion arrives through the event handler.
		case item.Event == whatsmeow.QRChannelTimeout.Event:
			emit(LifecycleEvent{Kind: EventAuthFailure, Reason: "qr scan timed out"})
		case item.Event == whatsmeow.QRChannelClientOutdated.Event:
			emit(LifecycleEvent{Kind: EventAuthFailure, Reason: "client version is outdated for qr pairing"})
		case item.Event == "error":
			reason := "qr channel reported an unspecified error"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			emit(LifecycleEvent{Kind: EventAuthFailure, Reason: reason})
		}
	}
}

func (m *meowClient) SendText(ctx context.Context, chatID string, text string) error {
	remoteJID, err := types.ParseJID(chatID)
	if err != nil {
		return err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: m.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	_, err = m.client.SendMessage(ctx, remoteJID, msgContent, msgExtra)
	return err
}

func (m *meowClient) SendFile(ctx context.Context, chatID string, attachment Attachment, caption string) error {
	remoteJID, err := types.ParseJID(chatID)
	if err != nil {
		return err
	}

	fileBytes, err := os.ReadFile(attachment.Path)
	if err != nil {
		return err
	}

	var msgContent *waE2E.Message
	switch mediaKindForMIME(attachment.MimeType) {
	case "image":
		msgContent, err = m.buildImageMessage(ctx, fileBytes, attachment.MimeType, caption)
	case "video":
		msgContent, err = m.buildVideoMessage(ctx, fileBytes, attachment.MimeType, caption)
	case "audio":
		msgContent, err = m.buildAudioMessage(ctx, fileBytes, attachment.MimeType)
	default:
		msgContent, err = m.buildDocumentMessage(ctx, fileBytes, attachment.MimeType, attachment.Name, caption)
	}
	if err != nil {
		return err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: m.client.GenerateMessageID()}
	_, err = m.client.SendMessage(ctx, remoteJID, msgContent, msgExtra)
	return err
}

func (m *meowClient) buildImageMessage(ctx context.Context, imageBytes []byte, mimeType string, caption string) (*waE2E.Message, error) {
	uploaded, err := m.client.Upload(ctx, imageBytes, whatsmeow.MediaImage)
	if err != nil {
		return nil, errors.New("Error While Uploading Media to WhatsApp Server")
	}

	imageMessage := &waE2E.ImageMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		Mimetype:      proto.String(mimeType),
		Caption:       proto.String(caption),
		FileLength:    proto.Uint64(uploaded.FileLength),
		FileSHA256:    uploaded.FileSHA256,
		FileEncSHA256: uploaded.FileEncSHA256,
		MediaKey:      uploaded.MediaKey,
	}

	if thumbnail, thumbErr := jpegThumbnail(imageBytes); thumbErr == nil {
		imageMessage.JPEGThumbnail = thumbnail
	} else {
		log.Session(m.sessionID).WithError(thumbErr).Warn("Skipping image thumbnail")
	}

	return &waE2E.Message{ImageMessage: imageMessage}, nil
}

func (m *meowClient) buildVideoMessage(ctx context.Context, videoBytes []byte, mimeType string, caption string) (*waE2E.Message, error) {
	uploaded, err := m.client.Upload(ctx, videoBytes, whatsmeow.MediaVideo)
	if err != nil {
		return nil, errors.New("Error While Uploading Media to WhatsApp Server")
	}

	return &waE2E.Message{
		VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		},
	}, nil
}

func (m *meowClient) buildAudioMessage(ctx context.Context, audioBytes []byte, mimeType string) (*waE2E.Message, error) {
	uploaded, err := m.client.Upload(ctx, audioBytes, whatsmeow.MediaAudio)
	if err != nil {
		return nil, errors.New("Error While Uploading Media to WhatsApp Server")
	}

	return &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		},
	}, nil
}

func (m *meowClient) buildDocumentMessage(ctx context.Context, documentBytes []byte, mimeType string, fileName string, caption string) (*waE2E.Message, error) {
	uploaded, err := m.client.Upload(ctx, documentBytes, whatsmeow.MediaDocument)
	if err != nil {
		return nil, errors.New("Error While Uploading Media to WhatsApp Server")
	}

	return &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(fileName),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		},
	}, nil
}

func (m *meowClient) Logout(ctx context.Context) error {
	if m.client.Store.ID == nil {
		return nil
	}

	logoutCtx, cancel := context.WithTimeout(ctx, logoutRequestTimeout)
	defer cancel()

	err := m.client.Logout(logoutCtx)
	if err != nil {
		m.client.Disconnect()
		if storeErr := m.client.Store.Delete(context.Background()); storeErr != nil {
			log.Session(m.sessionID).WithError(storeErr).Error("Failed to delete credential store after logout failure")
		}
	}
	return err
}

func (m *meowClient) Close() {
	m.client.RemoveEventHandler(m.handlerID)
	m.client.Disconnect()
	if err := m.container.Close(); err != nil {
		log.Session(m.sessionID).WithError(err).Warn("Failed to close credential store")
	}
}
