// Package chunkuploader moves one binary file to a remote store that only accepts bounded-size pieces.
// Chunks are sent sequentially with bounded retries, then a finalize call asks the remote side
// to reassemble them into one stored object.
package chunkuploader

import (
	"context"
	"io"
)

// File is the binary source of an upload.
type File struct {
	Name   string
	Type   string
	Size   int64
	Reader io.ReaderAt
}

// UploadSession identifies one upload attempt. It only lives in memory for the duration of Upload.
type UploadSession struct {
	ID          string
	TotalChunks int
	FileName    string
	FileType    string
	FileSize    int64
}

// Chunk is a contiguous, already encoded slice of the source file.
type Chunk struct {
	Index int
	Size  int64
	Data  string
}

// UploadResult is the remote descriptor of the stored file, returned unmodified by Upload.
type UploadResult struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	URL              string `json:"url"`
	OriginalFilename string `json:"originalFilename"`
}

// ProgressFunc receives a percentage between 0 and 100 and a human-readable status.
// It is called on the upload goroutine, so slow work inside it delays the upload.
type ProgressFunc func(percent float64, status string)

// ChunkRequest carries one chunk and the metadata of its session.
type ChunkRequest struct {
	UploadID    string
	ChunkIndex  int
	TotalChunks int
	ChunkData   string
	FileName    string
	FileType    string
	FileSize    int64
}

// CompleteRequest asks the remote service to merge all chunks of a session.
type CompleteRequest struct {
	UploadID    string
	TotalChunks int
	FileName    string
	FileType    string
	FileSize    int64
}

// Transport performs single network attempts against the remote chunk-upload service.
// Retries are the Uploader's job, implementations must not retry on their own.
type Transport interface {
	UploadChunk(ctx context.Context, req ChunkRequest) error
	CompleteUpload(ctx context.Context, req CompleteRequest) (UploadResult, error)
}

// ChunkProvider provides raw chunk data for upload.
type ChunkProvider interface {
	// NumChunks returns the total number of chunks.
	NumChunks() int

	// ChunkSize returns the size of the chunk at the given index.
	ChunkSize(index int) int64

	// GetChunk returns a reader for the chunk at the given index.
	GetChunk(index int) (io.Reader, error)
}
