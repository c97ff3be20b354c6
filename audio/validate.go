// Package audio prepares narration files for upload: it finds them, sniffs their type and
// checks them against what the audio host accepts.
package audio

import (
	"errors"
	"fmt"

	"github.com/docker/go-units"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

// DefaultMaxSize matches the limit of the admin upload forms.
const DefaultMaxSize int64 = 10 * 1024 * 1024

// AllowedTypes are the MIME types the audio host accepts.
var AllowedTypes = []string{
	"audio/aac",
	"audio/mp4",
	"audio/mpeg",
	"audio/wav",
	"audio/x-m4a",
}

var (
	// ErrEmpty ...
	ErrEmpty = errors.New("file is empty")
	// ErrInvalidType ...
	ErrInvalidType = errors.New("invalid file type")
	// ErrTooLarge ...
	ErrTooLarge = errors.New("file too large")
)

// IsAllowedType reports whether mimeType is one of AllowedTypes.
func IsAllowedType(mimeType string) bool {
	for _, t := range AllowedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Validate checks a file before it is handed to the uploader. maxSize <= 0 disables the size check.
func Validate(file chunkuploader.File, maxSize int64) error {
	if !IsAllowedType(file.Type) {
		return fmt.Errorf("%w: %s. Allowed: AAC, MP3, WAV, M4A", ErrInvalidType, file.Type)
	}
	if file.Size <= 0 {
		return fmt.Errorf("%w: %s", ErrEmpty, file.Name)
	}
	if maxSize > 0 && file.Size > maxSize {
		return fmt.Errorf("%w: file size (%s) exceeds %s limit",
			ErrTooLarge, units.BytesSize(float64(file.Size)), units.BytesSize(float64(maxSize)))
	}
	return nil
}
