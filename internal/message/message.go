package message

import (
	"errors"
	"mime/multipart"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"wablast/internal/app"
	typMessage "wablast/internal/types"
	"wablast/pkg/router"
	"wablast/pkg/validation"
	"wablast/pkg/whatsapp"
)

const maxAttachments = 10

// allowedMIMETypes mirrors the upload filter of the web client this API
// serves. Anything else is rejected before it touches disk.
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"application/pdf":          true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain":      true,
	"audio/mpeg":      true,
	"video/mp4":       true,
	"application/zip": true,
}

// saveAttachments persists the uploaded files under random names and returns
// their descriptors. On any failure the files already written are removed.
func saveAttachments(c *fiber.Ctx, files []*multipart.FileHeader) ([]whatsapp.Attachment, error) {
	attachments := make([]whatsapp.Attachment, 0, len(files))

	for _, file := range files {
		mimeType := file.Header.Get("Content-Type")
		if !allowedMIMETypes[mimeType] {
			whatsapp.CleanupAttachments(attachments)
			return nil, errors.New("File Type is not Supported: " + mimeType)
		}

		storedPath := filepath.Join(app.UploadsDir, uuid.NewString()+filepath.Ext(file.Filename))
		if err := c.SaveFile(file, storedPath); err != nil {
			whatsapp.CleanupAttachments(attachments)
			return nil, err
		}

		attachments = append(attachments, whatsapp.Attachment{
			Path:     storedPath,
			Name:     file.Filename,
			MimeType: mimeType,
		})
	}

	return attachments, nil
}

// Send
// @Summary     Send a Message Batch
// @Description Send a text and/or attachments to multiple recipients, now or scheduled
// @Tags        Message
// @Accept      multipart/form-data
// @Produce     json
// @Success     200
// @Router      /send-message [post]
func Send(c *fiber.Ctx) error {
	sessionID := c.Locals("session_id").(string)

	handle := app.Registry.Get(sessionID)
	if handle == nil {
		return router.ResponseBadRequest(c, "No Active WhatsApp Session")
	}

	recipients, err := whatsapp.ParseRecipients(c.FormValue("numbers"))
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	scheduleAt, err := validation.ParseScheduleTime(c.FormValue("schedule"))
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	var attachments []whatsapp.Attachment
	if form, formErr := c.MultipartForm(); formErr == nil && form != nil {
		files := form.File["files"]
		if len(files) > maxAttachments {
			return router.ResponseBadRequest(c, "Too Many Attachments, Maximum is 10")
		}
		attachments, err = saveAttachments(c, files)
		if err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
	}

	req := whatsapp.SendRequest{
		Recipients:  recipients,
		Message:     c.FormValue("message"),
		Attachments: attachments,
	}

	if !scheduleAt.IsZero() {
		ack, err := app.Scheduler.Schedule(handle, req, scheduleAt)
		if err != nil {
			whatsapp.CleanupAttachments(attachments)
			return router.ResponseBadRequest(c, err.Error())
		}

		return router.ResponseSuccessWithData(c, "Success Schedule Message Batch", typMessage.ResponseScheduled{
			Status:           "scheduled",
			ScheduledTime:    ack.ScheduledTime,
			TotalRecipients:  ack.TotalRecipients,
			TotalAttachments: ack.TotalAttachments,
		})
	}

	results, err := app.Dispatcher.Dispatch(c.UserContext(), handle, req)
	if err != nil {
		switch {
		case errors.Is(err, whatsapp.ErrSessionNotFound):
			return router.ResponseBadRequest(c, "No Active WhatsApp Session")
		case errors.Is(err, whatsapp.ErrSessionNotReady), errors.Is(err, whatsapp.ErrSessionDisconnected):
			return router.ResponseBadRequest(c, err.Error())
		default:
			return router.ResponseInternalError(c, err.Error())
		}
	}

	return router.ResponseSuccessWithData(c, "Success Send Message Batch", typMessage.ResponseSendNow{
		Status:           "sent",
		Results:          results,
		TotalRecipients:  len(recipients),
		TotalAttachments: len(attachments),
	})
}
