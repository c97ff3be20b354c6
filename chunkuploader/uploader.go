package chunkuploader

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Uploader sends files chunk by chunk, in index order, with bounded retries per chunk.
// One Uploader can serve concurrent Upload calls, every call gets its own session.
type Uploader struct {
	config    Config
	transport Transport
	logger    log.Logger
	stats     *Stats
	now       func() time.Time
}

// New creates a new Uploader with the given configuration.
func New(config Config, transport Transport, logger log.Logger) *Uploader {
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		config:    config.withDefaults(),
		transport: transport,
		logger:    logger,
		stats:     NewStats(),
		now:       time.Now,
	}
}

// Stats returns the upload statistics.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// Upload moves file to the remote service and returns the descriptor of the merged object.
// Progress is reported through onProgress, which may be nil.
// The context is checked between attempts and while waiting for a retry.
func (u *Uploader) Upload(ctx context.Context, file File, onProgress ProgressFunc) (UploadResult, error) {
	r := &run{
		sessionID:  NewSessionID(u.now()),
		file:       file,
		state:      StateIdle,
		onProgress: onProgress,
		logger:     u.logger,
	}

	r.transition(StateSplitting)
	r.report(0, fmt.Sprintf(u.config.Statuses.Splitting, file.Name))

	chunks, err := u.split(file)
	if err != nil {
		return UploadResult{}, r.fail(&InputError{Err: err})
	}

	session := newSession(r.sessionID, file, len(chunks))
	u.logger.Infof("Uploading %s (%s) in %d chunks of %s",
		file.Name, units.HumanSize(float64(file.Size)), session.TotalChunks, units.HumanSize(float64(u.config.ChunkSize)))

	r.transition(StateUploadingChunk)
	for _, chunk := range chunks {
		if err := u.uploadChunkWithRetry(ctx, session, chunk); err != nil {
			return UploadResult{}, r.fail(err)
		}

		// The last chunk's progress is reported by the merge step below.
		if chunk.Index < session.TotalChunks-1 {
			percent := float64(chunk.Index+1) / float64(session.TotalChunks) * 95
			r.report(percent, fmt.Sprintf(u.config.Statuses.Uploading, file.Name, chunk.Index+1, session.TotalChunks))
		}
	}

	r.transition(StateFinalizing)
	r.report(95, fmt.Sprintf(u.config.Statuses.Merging, file.Name))

	result, err := u.transport.CompleteUpload(ctx, session.completeRequest())
	if err != nil {
		return UploadResult{}, r.fail(&CompleteError{Err: err})
	}

	r.transition(StateCompleted)
	r.report(100, u.config.Statuses.Complete)
	u.logger.Donef("Uploaded %s as %s (%s)", file.Name, result.Filename, result.URL)

	return result, nil
}

func (u *Uploader) split(file File) ([]Chunk, error) {
	provider, err := NewReaderAtChunkProvider(file.Reader, file.Size, u.config.ChunkSize)
	if err != nil {
		return nil, err
	}

	return Split(provider, file.Type)
}

func (u *Uploader) uploadChunkWithRetry(ctx context.Context, session UploadSession, chunk Chunk) error {
	req := session.chunkRequest(chunk)

	var uploadErr error
	for attempt := 0; attempt < u.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := u.config.Backoff(attempt)
			u.logger.Warnf("Retrying chunk %d/%d after %s", chunk.Index+1, session.TotalChunks, backoff)
			if err := u.config.Sleep(ctx, backoff); err != nil {
				return &ChunkError{Index: chunk.Index, Attempts: attempt, Err: fmt.Errorf("upload cancelled: %w", err)}
			}
		}

		u.logger.Debugf("Uploading chunk %d/%d (attempt %d/%d) [finished=%d] [avg=%v]",
			chunk.Index+1, session.TotalChunks, attempt+1, u.config.MaxAttempts,
			u.stats.FinishedCount(), u.stats.Average().Round(time.Millisecond))

		start := time.Now()
		uploadErr = u.transport.UploadChunk(ctx, req)
		if uploadErr == nil {
			took := time.Since(start)
			u.stats.Update(took)
			u.logger.Debugf("Chunk %d uploaded in %v (%s)", chunk.Index+1, took.Round(time.Millisecond), units.HumanSize(float64(chunk.Size)))
			return nil
		}

		u.stats.AddFailedAttempt()
		u.logger.Warnf("Chunk %d upload attempt %d failed: %s", chunk.Index, attempt+1, uploadErr)

		if ctx.Err() != nil {
			return &ChunkError{Index: chunk.Index, Attempts: attempt + 1, Err: fmt.Errorf("upload cancelled: %w", ctx.Err())}
		}
	}

	return &ChunkError{Index: chunk.Index, Attempts: u.config.MaxAttempts, Err: uploadErr}
}

// run holds the state of one Upload call.
type run struct {
	sessionID   string
	file        File
	state       State
	lastPercent float64
	onProgress  ProgressFunc
	logger      log.Logger
}

func (r *run) transition(to State) {
	if !CanTransition(r.state, to) {
		r.logger.Warnf("Unexpected upload state change %s -> %s (%s)", r.state, to, r.sessionID)
	}
	r.logger.Debugf("Upload %s: %s -> %s", r.sessionID, r.state, to)
	r.state = to
}

func (r *run) report(percent float64, status string) {
	if percent < r.lastPercent {
		percent = r.lastPercent
	}
	if percent > 100 {
		percent = 100
	}
	r.lastPercent = percent

	if r.onProgress != nil {
		r.onProgress(percent, status)
	}
}

func (r *run) fail(err error) error {
	failedIn := r.state
	r.transition(StateFailed)
	r.logger.Errorf("Upload of %s failed: %s", r.file.Name, err)

	return &UploadError{
		SessionID: r.sessionID,
		FileName:  r.file.Name,
		State:     failedIn,
		Err:       err,
	}
}
