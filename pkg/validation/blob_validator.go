package validation

import (
	"strings"

	apperrors "go-diagnosis-bridge/internal/errors"
)

// BlobRefValidator checks stored-scan references against Azure naming rules
type BlobRefValidator struct {
	allowedContainers []string
}

// NewBlobRefValidator creates a validator that accepts any well-formed container
func NewBlobRefValidator() *BlobRefValidator {
	return &BlobRefValidator{}
}

// NewBlobRefValidatorWithContainers restricts references to the listed containers
func NewBlobRefValidatorWithContainers(containers []string) *BlobRefValidator {
	return &BlobRefValidator{allowedContainers: containers}
}

// ValidateBlobRef validates a container/blob pair
func (v *BlobRefValidator) ValidateBlobRef(container, blob string) error {
	if !validContainerName(container) {
		return apperrors.NewValidationError("Invalid container name.", nil)
	}
	if !v.isContainerAllowed(container) {
		return apperrors.NewValidationError("Container not allowed.", nil)
	}

	blob = strings.TrimSpace(blob)
	if blob == "" || len(blob) > 1024 {
		return apperrors.NewValidationError("Invalid blob name.", nil)
	}
	if strings.Contains(blob, "..") || strings.HasPrefix(blob, "/") {
		return apperrors.NewValidationError("Invalid blob name.", nil)
	}
	return nil
}

func (v *BlobRefValidator) isContainerAllowed(container string) bool {
	if len(v.allowedContainers) == 0 {
		return true
	}
	for _, allowed := range v.allowedContainers {
		if container == allowed {
			return true
		}
	}
	return false
}

// 3-63 chars of lowercase letters, digits and single hyphens, alphanumeric at both ends
func validContainerName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if name[0] == '-' || name[len(name)-1] == '-' || strings.Contains(name, "--") {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}
