package wavestk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

// DefaultAPIBaseURL is the production endpoint of the audio host.
const DefaultAPIBaseURL = "https://wave.be2nd.com/api"

// UploadParams ...
type UploadParams struct {
	APIBaseURL        string
	SessionCookieName string
	SessionCookie     string
	File              chunkuploader.File
	OnProgress        chunkuploader.ProgressFunc
	// HTTPClient is optional, DefaultHTTPClient is used when nil.
	HTTPClient *http.Client
	// Config is optional, chunkuploader.DefaultConfig is used when zero.
	Config chunkuploader.Config
}

// Uploader ...
type Uploader interface {
	Upload(context.Context, UploadParams, log.Logger) (chunkuploader.UploadResult, error)
}

// DefaultUploader ...
type DefaultUploader struct{}

// Upload ...
func (DefaultUploader) Upload(ctx context.Context, params UploadParams, logger log.Logger) (chunkuploader.UploadResult, error) {
	return Upload(ctx, params, logger)
}

// Upload sends one file to the audio host in chunks and returns the stored file descriptor.
func Upload(ctx context.Context, params UploadParams, logger log.Logger) (chunkuploader.UploadResult, error) {
	if logger == nil {
		logger = log.NewLogger()
	}
	if params.APIBaseURL == "" {
		return chunkuploader.UploadResult{}, fmt.Errorf("API base URL is empty")
	}

	httpClient, err := WithSessionCookie(params.HTTPClient, params.APIBaseURL, params.SessionCookieName, params.SessionCookie)
	if err != nil {
		return chunkuploader.UploadResult{}, err
	}
	if params.SessionCookie == "" {
		logger.Warnf("No session cookie configured, the audio host may reject the upload")
	}

	client := NewClient(httpClient, params.APIBaseURL, logger)
	uploader := chunkuploader.New(params.Config, client, logger)

	logger.Debugf("Upload %s to %s", params.File.Name, params.APIBaseURL)
	result, err := uploader.Upload(ctx, params.File, params.OnProgress)
	if err != nil {
		return chunkuploader.UploadResult{}, err
	}

	stats := uploader.Stats()
	logger.Debugf("Chunks: %d, failed attempts: %d, avg chunk time: %s, total: %s",
		stats.FinishedCount(), stats.FailedAttempts(), stats.Average(), stats.TotalDuration())

	return result, nil
}
