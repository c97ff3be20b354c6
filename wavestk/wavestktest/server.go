// Package wavestktest provides an in-memory stand-in for the audio host's chunk-upload service.
package wavestktest

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

// ChunkCall is one request received on the chunk endpoint.
type ChunkCall struct {
	UploadID    string
	ChunkIndex  int
	TotalChunks int
	FileName    string
	FileType    string
	FileSize    int64
	Size        int
	Cookie      string
	ReceivedAt  time.Time
}

// CompleteCall is one request received on the complete endpoint.
type CompleteCall struct {
	UploadID    string
	TotalChunks int
	FileName    string
	FileType    string
	FileSize    int64
}

type chunkBody struct {
	UploadID    string `json:"uploadId" binding:"required"`
	ChunkIndex  int    `json:"chunkIndex" binding:"min=0"`
	TotalChunks int    `json:"totalChunks" binding:"required,gt=0"`
	ChunkData   string `json:"chunkData" binding:"required"`
	FileName    string `json:"fileName" binding:"required"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize" binding:"gt=0"`
}

type completeBody struct {
	UploadID    string `json:"uploadId" binding:"required"`
	TotalChunks int    `json:"totalChunks" binding:"required,gt=0"`
	FileName    string `json:"fileName" binding:"required"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize" binding:"gt=0"`
}

type storedFile struct {
	contentType string
	data        []byte
}

type injectedFailure struct {
	remaining int
	status    int
}

// Server is a fake audio host. Chunks are kept per session until the session is completed.
type Server struct {
	*httptest.Server

	cookieName string

	mu             sync.Mutex
	sessions       map[string]map[int][]byte
	files          map[string]storedFile
	chunkCalls     []ChunkCall
	completeCalls  []CompleteCall
	chunkFailures  map[int]*injectedFailure
	completeStatus int
}

// NewServer starts a fake audio host. cookieName names the session cookie recorded on every chunk call.
func NewServer(cookieName string) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		cookieName:    cookieName,
		sessions:      map[string]map[int][]byte{},
		files:         map[string]storedFile{},
		chunkFailures: map[int]*injectedFailure{},
	}

	engine := gin.New()
	engine.POST("/upload/chunk", s.handleChunk)
	engine.POST("/upload/complete", s.handleComplete)
	engine.GET("/files/:id", s.handleFile)
	engine.HEAD("/files/:id", s.handleFile)

	s.Server = httptest.NewServer(engine)
	return s
}

// FailChunk makes the next `times` requests for the chunk index fail with status.
func (s *Server) FailChunk(index, times, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkFailures[index] = &injectedFailure{remaining: times, status: status}
}

// FailComplete makes every complete request fail with status. Zero clears it.
func (s *Server) FailComplete(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeStatus = status
}

// ChunkCalls returns every chunk request received so far, in arrival order.
func (s *Server) ChunkCalls() []ChunkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChunkCall(nil), s.chunkCalls...)
}

// CompleteCalls returns every complete request received so far, in arrival order.
func (s *Server) CompleteCalls() []CompleteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompleteCall(nil), s.completeCalls...)
}

// File returns the merged content stored under id.
func (s *Server) File(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f.data, ok
}

// PendingSessions returns the number of sessions with chunks that were never completed.
func (s *Server) PendingSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleChunk(c *gin.Context) {
	var body chunkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cookie, _ := c.Cookie(s.cookieName)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, data, decodeErr := chunkuploader.DecodeDataURL(body.ChunkData)
	s.chunkCalls = append(s.chunkCalls, ChunkCall{
		UploadID:    body.UploadID,
		ChunkIndex:  body.ChunkIndex,
		TotalChunks: body.TotalChunks,
		FileName:    body.FileName,
		FileType:    body.FileType,
		FileSize:    body.FileSize,
		Size:        len(data),
		Cookie:      cookie,
		ReceivedAt:  time.Now(),
	})

	if f := s.chunkFailures[body.ChunkIndex]; f != nil && f.remaining > 0 {
		f.remaining--
		c.JSON(f.status, gin.H{"error": fmt.Sprintf("chunk %d rejected", body.ChunkIndex)})
		return
	}

	if decodeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": decodeErr.Error()})
		return
	}
	if body.ChunkIndex >= body.TotalChunks {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk index out of range"})
		return
	}

	chunks, ok := s.sessions[body.UploadID]
	if !ok {
		chunks = map[int][]byte{}
		s.sessions[body.UploadID] = chunks
	}
	chunks[body.ChunkIndex] = data

	c.JSON(http.StatusOK, gin.H{"success": true, "chunkIndex": body.ChunkIndex})
}

func (s *Server) handleComplete(c *gin.Context) {
	var body completeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.completeCalls = append(s.completeCalls, CompleteCall{
		UploadID:    body.UploadID,
		TotalChunks: body.TotalChunks,
		FileName:    body.FileName,
		FileType:    body.FileType,
		FileSize:    body.FileSize,
	})

	if s.completeStatus != 0 {
		c.JSON(s.completeStatus, gin.H{"error": "merge failed"})
		return
	}

	chunks, ok := s.sessions[body.UploadID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown upload"})
		return
	}

	var merged bytes.Buffer
	for i := 0; i < body.TotalChunks; i++ {
		data, ok := chunks[i]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing chunk %d", i)})
			return
		}
		merged.Write(data)
	}
	if int64(merged.Len()) != body.FileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("size mismatch: expected %d, got %d", body.FileSize, merged.Len())})
		return
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), path.Base(body.FileName))
	s.files[id] = storedFile{contentType: body.FileType, data: merged.Bytes()}
	delete(s.sessions, body.UploadID)

	c.JSON(http.StatusOK, gin.H{
		"id":               id,
		"filename":         filename,
		"url":              s.URL + "/files/" + id,
		"originalFilename": body.FileName,
	})
}

func (s *Server) handleFile(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.files[c.Param("id")]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	contentType := f.contentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, c.Param("id"), time.Time{}, bytes.NewReader(f.data))
}
