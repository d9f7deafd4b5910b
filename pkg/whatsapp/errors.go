package whatsapp

import (
	"errors"
	"fmt"
)

var (
	ErrSessionExists       = errors.New("WhatsApp Session Already Exists")
	ErrSessionNotFound     = errors.New("WhatsApp Session is not Found")
	ErrSessionNotReady     = errors.New("WhatsApp Session is not Ready")
	ErrSessionDisconnected = errors.New("WhatsApp Session is Disconnected")
	ErrNoRecipients        = errors.New("Recipient List Must Contain at Least One Valid Number")
	ErrPastScheduleTime    = errors.New("Schedule Time Must Be in the Future")
)

// DeliveryError wraps a single failed send attempt. The dispatcher records it
// into the result sequence instead of aborting the batch.
type DeliveryError struct {
	Recipient string
	Item      string
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("delivery to %s failed for %s: %v", e.Recipient, e.Item, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
