package chunkuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile(name string, size int) File {
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	return File{
		Name:   name,
		Type:   "audio/mpeg",
		Size:   int64(size),
		Reader: bytes.NewReader(data),
	}
}

func testUploader(transport Transport, sleeper *recordingSleeper) *Uploader {
	config := DefaultConfig()
	config.ChunkSize = 10
	config.Sleep = sleeper.Sleep
	return New(config, transport, log.NewLogger())
}

func TestUploader_Upload_Success(t *testing.T) {
	transport := newFakeTransport()
	sleeper := &recordingSleeper{}
	uploader := testUploader(transport, sleeper)
	progress := &progressRecorder{}

	result, err := uploader.Upload(context.Background(), testFile("chapter.mp3", 25), progress.record)
	require.NoError(t, err)

	assert.Equal(t, transport.completeResult, result)
	assert.Empty(t, sleeper.waits)

	require.Len(t, transport.chunkRequests, 3)
	sessionID := transport.chunkRequests[0].UploadID
	assert.Regexp(t, `^upload_\d+_[0-9a-f]{9}$`, sessionID)

	var total int64
	for i, req := range transport.chunkRequests {
		assert.Equal(t, i, req.ChunkIndex)
		assert.Equal(t, 3, req.TotalChunks)
		assert.Equal(t, sessionID, req.UploadID)
		assert.Equal(t, "chapter.mp3", req.FileName)
		assert.Equal(t, "audio/mpeg", req.FileType)
		assert.Equal(t, int64(25), req.FileSize)

		_, data, err := DecodeDataURL(req.ChunkData)
		require.NoError(t, err)
		total += int64(len(data))
	}
	assert.Equal(t, int64(25), total)

	require.Len(t, transport.completeCalls, 1)
	assert.Equal(t, CompleteRequest{
		UploadID:    sessionID,
		TotalChunks: 3,
		FileName:    "chapter.mp3",
		FileType:    "audio/mpeg",
		FileSize:    25,
	}, transport.completeCalls[0])

	percents := progress.percents()
	require.Len(t, percents, 5)
	assert.Equal(t, 0.0, percents[0])
	assert.InDelta(t, 95.0/3, percents[1], 0.001)
	assert.InDelta(t, 2*95.0/3, percents[2], 0.001)
	assert.Equal(t, 95.0, percents[3])
	assert.Equal(t, 100.0, percents[4])
	assert.Equal(t, "Uploading chapter.mp3 - chunk 1/3", progress.events[1].status)
	assert.Equal(t, "Merging file: chapter.mp3", progress.events[3].status)
}

func TestUploader_Upload_ProgressIsMonotonic(t *testing.T) {
	for _, size := range []int{1, 10, 11, 99, 100} {
		t.Run(fmt.Sprintf("%d bytes", size), func(t *testing.T) {
			transport := newFakeTransport()
			progress := &progressRecorder{}

			_, err := testUploader(transport, &recordingSleeper{}).Upload(context.Background(), testFile("a.wav", size), progress.record)
			require.NoError(t, err)

			percents := progress.percents()
			require.NotEmpty(t, percents)
			assert.Equal(t, 0.0, percents[0])
			assert.Equal(t, 100.0, percents[len(percents)-1])

			ninetyFives := 0
			for i, p := range percents {
				if i > 0 {
					assert.GreaterOrEqual(t, p, percents[i-1])
				}
				if p == 95 {
					ninetyFives++
				}
			}
			assert.Equal(t, 1, ninetyFives)
		})
	}
}

func TestUploader_Upload_Retry(t *testing.T) {
	transport := newFakeTransport()
	transport.failures[1] = 2
	sleeper := &recordingSleeper{}

	_, err := testUploader(transport, sleeper).Upload(context.Background(), testFile("chapter.mp3", 25), nil)
	require.NoError(t, err)

	assert.Len(t, transport.requestsFor(0), 1)
	assert.Len(t, transport.requestsFor(1), 3)
	assert.Len(t, transport.requestsFor(2), 1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Len(t, transport.completeCalls, 1)

	var order []int
	for _, req := range transport.chunkRequests {
		order = append(order, req.ChunkIndex)
	}
	assert.Equal(t, []int{0, 1, 1, 1, 2}, order)
}

func TestUploader_Upload_ChunkRetriesExhausted(t *testing.T) {
	transport := newFakeTransport()
	transport.failures[1] = 3
	sleeper := &recordingSleeper{}
	progress := &progressRecorder{}

	_, err := testUploader(transport, sleeper).Upload(context.Background(), testFile("chapter.mp3", 25), progress.record)
	require.Error(t, err)

	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Equal(t, StateUploadingChunk, uploadErr.State)

	var chunkErr *ChunkError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, 3, chunkErr.Attempts)
	assert.Contains(t, err.Error(), "failed to upload chunk 1 after 3 attempts")

	assert.Len(t, transport.requestsFor(1), 3)
	assert.Empty(t, transport.requestsFor(2))
	assert.Empty(t, transport.completeCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)

	for _, e := range progress.events {
		assert.Less(t, e.percent, 95.0)
	}
}

func TestUploader_Upload_CompleteFails(t *testing.T) {
	transport := newFakeTransport()
	transport.completeErr = errors.New("HTTP 500: merge failed")
	progress := &progressRecorder{}

	_, err := testUploader(transport, &recordingSleeper{}).Upload(context.Background(), testFile("chapter.mp3", 25), progress.record)
	require.Error(t, err)

	var completeErr *CompleteError
	require.True(t, errors.As(err, &completeErr))
	var chunkErr *ChunkError
	assert.False(t, errors.As(err, &chunkErr))
	assert.Contains(t, err.Error(), "failed to complete upload")
	assert.NotContains(t, err.Error(), "failed to upload chunk")

	assert.Len(t, transport.completeCalls, 1)
	assert.NotContains(t, progress.percents(), 100.0)
}

func TestUploader_Upload_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{
			name: "empty file",
			file: File{Name: "empty.mp3", Type: "audio/mpeg", Size: 0, Reader: bytes.NewReader(nil)},
		},
		{
			name: "missing reader",
			file: File{Name: "nil.mp3", Type: "audio/mpeg", Size: 10},
		},
		{
			name: "unreadable source",
			file: File{Name: "broken.mp3", Type: "audio/mpeg", Size: 25, Reader: failingReaderAt{}},
		},
		{
			name: "source shorter than declared",
			file: File{Name: "short.mp3", Type: "audio/mpeg", Size: 25, Reader: bytes.NewReader([]byte("tiny"))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()

			_, err := testUploader(transport, &recordingSleeper{}).Upload(context.Background(), tt.file, nil)
			require.Error(t, err)

			var inputErr *InputError
			assert.True(t, errors.As(err, &inputErr))
			var uploadErr *UploadError
			require.True(t, errors.As(err, &uploadErr))
			assert.Equal(t, StateSplitting, uploadErr.State)

			assert.Empty(t, transport.chunkRequests)
			assert.Empty(t, transport.completeCalls)
		})
	}
}

func TestUploader_Upload_CancelledDuringBackoff(t *testing.T) {
	transport := newFakeTransport()
	transport.failures[0] = 3

	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultConfig()
	config.ChunkSize = 10
	config.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := New(config, transport, log.NewLogger()).Upload(ctx, testFile("chapter.mp3", 25), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, transport.requestsFor(0), 1)
	assert.Empty(t, transport.completeCalls)
}

// sessionTransport records chunk indices per session token.
type sessionTransport struct {
	mu       sync.Mutex
	sessions map[string][]int
}

func (t *sessionTransport) UploadChunk(_ context.Context, req ChunkRequest) error {
	t.mu.Lock()
	t.sessions[req.UploadID] = append(t.sessions[req.UploadID], req.ChunkIndex)
	t.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil
}

func (t *sessionTransport) CompleteUpload(_ context.Context, req CompleteRequest) (UploadResult, error) {
	return UploadResult{ID: req.UploadID, OriginalFilename: req.FileName}, nil
}

func TestUploader_Upload_ConcurrentUploadsKeepSessionsApart(t *testing.T) {
	transport := &sessionTransport{sessions: map[string][]int{}}
	uploader := testUploader(transport, &recordingSleeper{})

	files := []File{testFile("first.mp3", 95), testFile("second.wav", 42)}
	results := make([]UploadResult, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			results[i], errs[i] = uploader.Upload(context.Background(), f, nil)
		}(i, f)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].ID, results[1].ID)

	require.Len(t, transport.sessions, 2)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, transport.sessions[results[0].ID])
	assert.Equal(t, []int{0, 1, 2, 3, 4}, transport.sessions[results[1].ID])
	assert.Equal(t, int64(15), uploader.Stats().FinishedCount())
}

func TestStats(t *testing.T) {
	stats := NewStats()

	if stats.FinishedCount() != 0 {
		t.Errorf("Expected 0 finished, got %d", stats.FinishedCount())
	}

	if stats.Average() != 0 {
		t.Errorf("Expected 0 average, got %v", stats.Average())
	}

	stats.Update(100 * time.Millisecond)
	stats.Update(200 * time.Millisecond)
	stats.Update(300 * time.Millisecond)
	stats.AddFailedAttempt()

	assert.Equal(t, int64(3), stats.FinishedCount())
	assert.Equal(t, int64(1), stats.FailedAttempts())
	assert.Equal(t, 200*time.Millisecond, stats.Average())
	assert.Equal(t, 600*time.Millisecond, stats.TotalDuration())
}

func TestConfig_Backoff(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, time.Duration(0), config.Backoff(0))
	assert.Equal(t, time.Second, config.Backoff(1))
	assert.Equal(t, 2*time.Second, config.Backoff(2))
	assert.Equal(t, 4*time.Second, config.Backoff(3))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateSplitting))
	assert.True(t, CanTransition(StateSplitting, StateFailed))
	assert.True(t, CanTransition(StateUploadingChunk, StateFinalizing))
	assert.True(t, CanTransition(StateFinalizing, StateCompleted))
	assert.False(t, CanTransition(StateIdle, StateFinalizing))
	assert.False(t, CanTransition(StateFailed, StateSplitting))
	assert.False(t, CanTransition(StateCompleted, StateUploadingChunk))
}

func TestUploader_Upload_JapaneseStatuses(t *testing.T) {
	config := DefaultConfig()
	config.ChunkSize = 10
	config.Sleep = (&recordingSleeper{}).Sleep
	config.Statuses = StatusesFor("ja")
	uploader := New(config, newFakeTransport(), log.NewLogger())
	progress := &progressRecorder{}

	_, err := uploader.Upload(context.Background(), testFile("rashomon.mp3", 25), progress.record)
	require.NoError(t, err)

	var statuses []string
	for _, e := range progress.events {
		statuses = append(statuses, e.status)
	}
	assert.Equal(t, []string{
		"ファイルを分割中: rashomon.mp3",
		"アップロード中: rashomon.mp3 - チャンク 1/3",
		"アップロード中: rashomon.mp3 - チャンク 2/3",
		"ファイルを結合中: rashomon.mp3",
		"アップロード完了!",
	}, statuses)
}

func TestStatusesFor(t *testing.T) {
	assert.Equal(t, JapaneseStatuses, StatusesFor("ja"))
	assert.Equal(t, EnglishStatuses, StatusesFor("en"))
	assert.Equal(t, EnglishStatuses, StatusesFor(""))
	assert.Equal(t, EnglishStatuses, Config{}.withDefaults().Statuses)
}
