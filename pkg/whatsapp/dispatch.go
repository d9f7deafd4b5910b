package whatsapp

import (
	"context"
	"os"
	"strings"
	"time"

	"wablast/pkg/env"
	"wablast/pkg/log"
)

const (
	StatusTextSent = "text_sent"
	StatusFileSent = "file_sent"
	StatusError    = "error"
)

// SendRequest is one batch of deliveries: an optional text plus optional
// attachments, fanned out to every recipient.
type SendRequest struct {
	Recipients  []string
	Message     string
	Attachments []Attachment
}

// DispatchResult is one entry of the per-recipient, per-item outcome
// sequence.
type DispatchResult struct {
	Number   string `json:"number"`
	Status   string `json:"status"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ParseRecipients splits a comma-separated recipient field and strips every
// non-digit character from each entry. Entries left empty are dropped.
func ParseRecipients(raw string) ([]string, error) {
	var recipients []string
	for _, part := range strings.Split(raw, ",") {
		var digits strings.Builder
		for _, r := range part {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() > 0 {
			recipients = append(recipients, digits.String())
		}
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	return recipients, nil
}

// Dispatcher walks a send request across its recipients with fixed pacing
// between them, so a batch never bursts.
type Dispatcher struct {
	RecipientPacing  time.Duration
	AttachmentPacing time.Duration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		RecipientPacing:  env.GetEnvDurationOrDefault("WHATSAPP_SEND_PACING", time.Second),
		AttachmentPacing: env.GetEnvDurationOrDefault("WHATSAPP_FILE_PACING", 500*time.Millisecond),
	}
}

// Dispatch delivers req through the handle and returns one result per
// attempted item, in attempt order. A failed item is recorded and the batch
// continues. Attachment files on disk are always deleted before returning,
// except when the recipient list itself is invalid.
func (d *Dispatcher) Dispatch(ctx context.Context, handle *Handle, req SendRequest) ([]DispatchResult, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	defer CleanupAttachments(req.Attachments)

	if handle == nil {
		return nil, ErrSessionNotFound
	}
	if state := handle.State(); state != StateReady {
		if state == StateDisconnected || state == StateFailed {
			return nil, ErrSessionDisconnected
		}
		return nil, ErrSessionNotReady
	}

	results := make([]DispatchResult, 0, len(req.Recipients)*(1+len(req.Attachments)))

	for i, recipient := range req.Recipients {
		if i > 0 {
			if err := sleepContext(ctx, d.RecipientPacing); err != nil {
				return results, err
			}
		}

		if strings.TrimSpace(req.Message) != "" {
			if err := handle.SendText(ctx, recipient, req.Message); err != nil {
				results = append(results, DispatchResult{
					Number: recipient,
					Status: StatusError,
					Error:  err.Error(),
				})
				log.Session(handle.SessionID()).WithError(err).
					WithField("recipient", recipient).Error("Text delivery failed")
			} else {
				results = append(results, DispatchResult{
					Number: recipient,
					Status: StatusTextSent,
				})
			}
		}

		for j, attachment := range req.Attachments {
			if j > 0 {
				if err := sleepContext(ctx, d.AttachmentPacing); err != nil {
					return results, err
				}
			}

			if err := handle.SendFile(ctx, recipient, attachment, req.Message); err != nil {
				results = append(results, DispatchResult{
					Number:   recipient,
					Status:   StatusError,
					FileName: attachment.Name,
					FileType: attachment.MimeType,
					Error:    err.Error(),
				})
				log.Session(handle.SessionID()).WithError(err).
					WithField("recipient", recipient).
					WithField("file", attachment.Name).Error("File delivery failed")
			} else {
				results = append(results, DispatchResult{
					Number:   recipient,
					Status:   StatusFileSent,
					FileName: attachment.Name,
					FileType: attachment.MimeType,
				})
			}
		}
	}

	return results, nil
}

// CleanupAttachments deletes the uploaded files backing a batch. Already
// missing files are not an error.
func CleanupAttachments(attachments []Attachment) {
	for _, attachment := range attachments {
		if attachment.Path == "" {
			continue
		}
		if err := os.Remove(attachment.Path); err != nil && !os.IsNotExist(err) {
			log.Print(nil).WithError(err).
				WithField("file", attachment.Path).Warn("Failed to remove uploaded file")
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
