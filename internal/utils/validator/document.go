package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/rag-service/pkg/logger"
)

// DocumentValidator checks uploads before they are stored. The file type is not
// checked here: unsupported types are accepted and fail during ingestion.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

// Error joins the validation messages.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func NewDocumentValidator(logger logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{MaxFileSize: 50 * units.MB}
	}
	return &DocumentValidator{
		logger: logger,
		config: config,
	}
}

// Validate hashes and sniffs r and checks the upload limits. r is rewound on return.
func (v *DocumentValidator) Validate(r io.ReadSeeker, filename string, size int64) (*ValidationResult, error) {
	name := SanitizeFilename(filename)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  name,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(name)),
		},
	}

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, nil
	}

	hash, err := v.calculateHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mtype.String()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}

	v.logger.Debug("Validated upload",
		logger.String("filename", name),
		logger.Int64("size", size),
		logger.String("mimeType", result.FileInfo.MimeType),
	)

	return result, nil
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errors []ValidationError

	if info.Filename == "" {
		errors = append(errors, ValidationError{
			Code:    "MISSING_FILENAME",
			Message: "file name is required",
			Field:   "file",
		})
	}
	if info.Size <= 0 {
		errors = append(errors, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "file is empty",
			Field:   "file",
		})
	}
	if info.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code: "FILE_TOO_LARGE",
			Message: fmt.Sprintf("file size %s exceeds maximum of %s",
				units.HumanSize(float64(info.Size)), units.HumanSize(float64(v.config.MaxFileSize))),
			Field: "file",
		})
	}

	return errors
}

func (v *DocumentValidator) calculateHash(r io.ReadSeeker) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// SanitizeFilename strips directories and control characters from a client file name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
}
