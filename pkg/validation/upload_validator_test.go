package validation

import (
	"bytes"
	"encoding/base64"
	"testing"

	apperrors "go-diagnosis-bridge/internal/errors"
	"go-diagnosis-bridge/pkg/models"
)

// Valid minimal PNG data for a 1x1 transparent pixel
var pngData = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, // 1x1 dimensions
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41, // IDAT chunk start
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE, // IEND chunk
	0x42, 0x60, 0x82,
}

func TestEncode_NoFile(t *testing.T) {
	_, err := NewUploadValidator().Encode(nil)
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if appErr, _ := apperrors.As(err); appErr.Message != MsgNoFile {
		t.Errorf("Expected %q, got %q", MsgNoFile, appErr.Message)
	}
}

func TestEncode_LengthHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, true},
		{"just under", 72, true},  // 96 base64 chars
		{"exactly at", 75, false}, // 100 base64 chars
		{"large", 4096, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := &models.ImageUpload{Data: bytes.Repeat([]byte{0xAB}, tt.size)}
			encoded, err := NewUploadValidator().Encode(upload)
			if tt.wantErr {
				appErr, ok := apperrors.As(err)
				if !ok || appErr.Message != MsgInvalidEncoding {
					t.Fatalf("Expected %q error, got %v", MsgInvalidEncoding, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if encoded.Data != base64.StdEncoding.EncodeToString(upload.Data) {
				t.Error("Expected standard base64 encoding of the payload")
			}
		})
	}
}

func TestEncode_CustomMinLength(t *testing.T) {
	v := NewUploadValidatorWithMinLength(0)
	if _, err := v.Encode(&models.ImageUpload{Data: []byte{1}}); err != nil {
		t.Errorf("Expected tiny payload to pass with zero minimum, got %v", err)
	}
	if _, err := v.Encode(&models.ImageUpload{}); err == nil {
		t.Error("Expected empty payload to fail even with zero minimum")
	}
}

func TestResolveMimeType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"declared wins", "image/jpeg", pngData, "image/jpeg"},
		{"declared with params", "Image/PNG; foo=bar", nil, "image/png"},
		{"octet-stream sniffed", "application/octet-stream", pngData, "image/png"},
		{"missing sniffed", "", pngData, "image/png"},
		{"non-image content falls back", "", []byte("just some text"), FallbackMimeType},
		{"nothing at all", "", nil, FallbackMimeType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveMimeType(tt.declared, tt.data); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEncode_SniffsUndeclaredType(t *testing.T) {
	data := append(append([]byte{}, pngData...), bytes.Repeat([]byte{0}, 64)...)
	encoded, err := NewUploadValidator().Encode(&models.ImageUpload{Data: data, DeclaredType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if encoded.MimeType != "image/png" {
		t.Errorf("Expected sniffed image/png, got %q", encoded.MimeType)
	}
}
