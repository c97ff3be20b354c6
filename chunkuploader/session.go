package chunkuploader

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionSuffixLength = 9

// NewSessionID returns a token of the form upload_<unix millis>_<random suffix>.
// The remote service keys chunks by this token, so it only has to be unique across concurrent uploads.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:sessionSuffixLength]
	return fmt.Sprintf("upload_%d_%s", now.UnixMilli(), suffix)
}

func newSession(id string, file File, totalChunks int) UploadSession {
	return UploadSession{
		ID:          id,
		TotalChunks: totalChunks,
		FileName:    file.Name,
		FileType:    file.Type,
		FileSize:    file.Size,
	}
}

func (s UploadSession) chunkRequest(chunk Chunk) ChunkRequest {
	return ChunkRequest{
		UploadID:    s.ID,
		ChunkIndex:  chunk.Index,
		TotalChunks: s.TotalChunks,
		ChunkData:   chunk.Data,
		FileName:    s.FileName,
		FileType:    s.FileType,
		FileSize:    s.FileSize,
	}
}

func (s UploadSession) completeRequest() CompleteRequest {
	return CompleteRequest{
		UploadID:    s.ID,
		TotalChunks: s.TotalChunks,
		FileName:    s.FileName,
		FileType:    s.FileType,
		FileSize:    s.FileSize,
	}
}
