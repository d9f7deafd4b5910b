package whatsapp

import (
	"bytes"
	"errors"
	"strings"

	"github.com/sunshineplan/imgconv"
)

// Attachment is one uploaded file referenced by a send request.
type Attachment struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// IsDocumentMIME reports whether a MIME type must be sent with document
// semantics. WhatsApp renders image/video/audio inline, everything else is a
// document.
func IsDocumentMIME(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return !strings.HasPrefix(mimeType, "image/") &&
		!strings.HasPrefix(mimeType, "video/") &&
		!strings.HasPrefix(mimeType, "audio/")
}

func mediaKindForMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}

// jpegThumbnail renders the 72px JPEG preview WhatsApp shows next to an
// inline image message.
func jpegThumbnail(imageBytes []byte) ([]byte, error) {
	decoded, err := imgconv.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.New("Error While Decoding Thumbnail Image Stream")
	}
	encoded := new(bytes.Buffer)
	err = imgconv.Write(encoded,
		imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, errors.New("Error While Encoding Thumbnail Image Stream")
	}
	return encoded.Bytes(), nil
}
