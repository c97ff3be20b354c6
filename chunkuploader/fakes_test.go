package chunkuploader

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeTransport struct {
	mu sync.Mutex

	// failures maps a chunk index to the number of attempts that should fail.
	failures       map[int]int
	completeErr    error
	chunkRequests  []ChunkRequest
	completeCalls  []CompleteRequest
	completeResult UploadResult
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failures: map[int]int{},
		completeResult: UploadResult{
			ID:               "audio-1",
			Filename:         "1700000000000-chapter.mp3",
			URL:              "https://wave.example.com/files/audio-1",
			OriginalFilename: "chapter.mp3",
		},
	}
}

func (t *fakeTransport) UploadChunk(_ context.Context, req ChunkRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.chunkRequests = append(t.chunkRequests, req)
	if t.failures[req.ChunkIndex] > 0 {
		t.failures[req.ChunkIndex]--
		return errors.New("HTTP 500: temporary error")
	}
	return nil
}

func (t *fakeTransport) CompleteUpload(_ context.Context, req CompleteRequest) (UploadResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completeCalls = append(t.completeCalls, req)
	if t.completeErr != nil {
		return UploadResult{}, t.completeErr
	}
	return t.completeResult, nil
}

func (t *fakeTransport) requestsFor(index int) []ChunkRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reqs []ChunkRequest
	for _, req := range t.chunkRequests {
		if req.ChunkIndex == index {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type progressEvent struct {
	percent float64
	status  string
}

type progressRecorder struct {
	events []progressEvent
}

func (r *progressRecorder) record(percent float64, status string) {
	r.events = append(r.events, progressEvent{percent: percent, status: status})
}

func (r *progressRecorder) percents() []float64 {
	var p []float64
	for _, e := range r.events {
		p = append(p, e.percent)
	}
	return p
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt([]byte, int64) (int, error) {
	return 0, errors.New("disk on fire")
}
