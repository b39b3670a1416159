package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/pdf-insight/internal/domain"
)

// Extension is the only accepted upload extension.
const Extension = ".pdf"

// Validator provides input validation for PDF files
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateFilename checks that an uploaded file name carries the .pdf extension.
func (v *Validator) ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.ValidationError("file name cannot be empty", nil)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext != Extension {
		if ext == "" {
			return domain.ValidationError(fmt.Sprintf("file %q is not a PDF (no extension)", name), nil)
		}
		return domain.ValidationError(fmt.Sprintf("file %q is not a PDF (has extension %s)", name, ext), nil)
	}
	return nil
}

// ValidatePDFPath checks that path names a readable .pdf file. Anything that
// exists but is not one is a DocumentOpenError.
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DocumentOpenError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.DocumentOpenError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.DocumentOpenError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != Extension {
		return domain.DocumentOpenError(fmt.Sprintf("not a PDF file: %s", path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.DocumentOpenError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}
