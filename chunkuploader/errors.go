package chunkuploader

import (
	"fmt"
)

// UploadError is the single failure kind returned by Upload.
// Use errors.As to reach the InputError, ChunkError or CompleteError behind it.
type UploadError struct {
	SessionID string
	FileName  string
	State     State
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s (%s) failed while %s: %s", e.FileName, e.SessionID, e.State, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// InputError means the source could not be read or encoded. No network call was made.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("prepare file: %s", e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ChunkError means a chunk could not be delivered within the attempt limit.
type ChunkError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("failed to upload chunk %d after %d attempts: %s", e.Index, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// CompleteError means every chunk arrived but the remote service did not merge them.
type CompleteError struct {
	Err error
}

func (e *CompleteError) Error() string {
	return fmt.Sprintf("failed to complete upload: %s", e.Err)
}

func (e *CompleteError) Unwrap() error {
	return e.Err
}
