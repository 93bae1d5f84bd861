package validation

import (
	"encoding/base64"
	"strings"

	apperrors "go-diagnosis-bridge/internal/errors"
	"go-diagnosis-bridge/pkg/models"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultMinEncodedLength is the shortest base64 payload accepted as an image
	DefaultMinEncodedLength = 100
	// FallbackMimeType is used when neither the caller nor the content names an image type
	FallbackMimeType = "image/png"

	MsgNoFile          = "No file uploaded."
	MsgInvalidEncoding = "Invalid image encoding."
)

// EncodedImage is an upload ready to be sent upstream
type EncodedImage struct {
	MimeType string
	Data     string
}

// UploadValidator turns raw uploads into encoded images.
// The length check is a plausibility heuristic, not a format check.
type UploadValidator struct {
	minEncodedLength int
}

// NewUploadValidator creates a validator with the default minimum length
func NewUploadValidator() *UploadValidator {
	return &UploadValidator{minEncodedLength: DefaultMinEncodedLength}
}

// NewUploadValidatorWithMinLength creates a validator with a custom minimum length
func NewUploadValidatorWithMinLength(minEncodedLength int) *UploadValidator {
	if minEncodedLength < 0 {
		minEncodedLength = 0
	}
	return &UploadValidator{minEncodedLength: minEncodedLength}
}

// Encode validates an upload and base64 encodes it. A nil upload means no file was sent.
func (v *UploadValidator) Encode(upload *models.ImageUpload) (*EncodedImage, error) {
	if upload == nil {
		return nil, apperrors.NewValidationError(MsgNoFile, nil)
	}

	encoded := base64.StdEncoding.EncodeToString(upload.Data)
	if encoded == "" || len(encoded) < v.minEncodedLength {
		return nil, apperrors.NewValidationError(MsgInvalidEncoding, nil)
	}

	return &EncodedImage{
		MimeType: ResolveMimeType(upload.DeclaredType, upload.Data),
		Data:     encoded,
	}, nil
}

// ResolveMimeType prefers the declared type. Generic or missing declarations fall
// back to content sniffing, and finally to FallbackMimeType.
func ResolveMimeType(declared string, data []byte) string {
	declared, _, _ = strings.Cut(declared, ";")
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	if len(data) > 0 {
		detected := mimetype.Detect(data)
		if strings.HasPrefix(detected.String(), "image/") {
			return detected.String()
		}
	}
	return FallbackMimeType
}
