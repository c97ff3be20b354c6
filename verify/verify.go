// Package verify checks that an uploaded file can be fetched back from its access URL intact.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"
	"github.com/rodoku-audio/rodoku-tools/audio"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

// ErrMismatch is returned when the downloaded file differs from the local source.
var ErrMismatch = errors.New("remote file doesn't match the local source")

// Report ...
type Report struct {
	URL            string `json:"url"`
	LocalSize      int64  `json:"localSize"`
	RemoteSize     int64  `json:"remoteSize"`
	LocalChecksum  string `json:"localSha256"`
	RemoteChecksum string `json:"remoteSha256"`
}

// Match reports whether both size and checksum agree.
func (r Report) Match() bool {
	return r.LocalSize == r.RemoteSize && r.LocalChecksum == r.RemoteChecksum
}

const (
	defaultDownloadRetries   = 2
	defaultDownloadRetryWait = 3 * time.Second
)

// Verifier downloads upload results and compares them with the files they came from.
// Requests are retried by the HTTP client, a download that still fails is started over.
type Verifier struct {
	client            *http.Client
	logger            log.Logger
	downloadRetries   uint
	downloadRetryWait time.Duration
}

// NewVerifier ...
func NewVerifier(logger log.Logger) *Verifier {
	v := NewVerifierWithClient(nil, logger)

	retryableHTTPClient := retryhttp.NewClient(logger)
	retryableHTTPClient.CheckRetry = v.checkRetry
	v.client = retryableHTTPClient.StandardClient()

	return v
}

// NewVerifierWithClient uses client for downloads as is.
func NewVerifierWithClient(client *http.Client, logger log.Logger) *Verifier {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Verifier{
		client:            client,
		logger:            logger,
		downloadRetries:   defaultDownloadRetries,
		downloadRetryWait: defaultDownloadRetryWait,
	}
}

// WithDownloadRetries sets how many times a failed download is started over and the wait before each restart.
func (v *Verifier) WithDownloadRetries(times uint, wait time.Duration) *Verifier {
	v.downloadRetries = times
	v.downloadRetryWait = wait
	return v
}

// Verify downloads result.URL into a temporary directory and compares it with local.
// A mismatch is reported with both the filled Report and ErrMismatch.
func (v *Verifier) Verify(ctx context.Context, result chunkuploader.UploadResult, local chunkuploader.File) (Report, error) {
	report := Report{URL: result.URL, LocalSize: local.Size}
	if result.URL == "" {
		return report, fmt.Errorf("upload result has no URL")
	}
	if local.Reader == nil {
		return report, fmt.Errorf("local file has no content")
	}

	localChecksum, err := checksumOf(io.NewSectionReader(local.Reader, 0, local.Size))
	if err != nil {
		return report, fmt.Errorf("failed to hash local file: %w", err)
	}
	report.LocalChecksum = localChecksum

	tmpDir, err := os.MkdirTemp("", "rodoku-verify")
	if err != nil {
		return report, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			v.logger.Warnf("Failed to remove %s: %s", tmpDir, err)
		}
	}()

	name := result.Filename
	if name == "" {
		name = local.Name
	}
	dest := filepath.Join(tmpDir, audio.SanitizeFilename(name))

	v.logger.Debugf("Download %s to %s", result.URL, dest)
	if err := v.download(ctx, result.URL, dest); err != nil {
		return report, fmt.Errorf("failed to download %s: %w", result.URL, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return report, err
	}
	report.RemoteSize = info.Size()

	remoteChecksum, err := checksumOfFile(dest)
	if err != nil {
		return report, fmt.Errorf("failed to hash downloaded file: %w", err)
	}
	report.RemoteChecksum = remoteChecksum

	if !report.Match() {
		return report, fmt.Errorf("%w: local %s (%s), remote %s (%s)", ErrMismatch,
			units.HumanSize(float64(report.LocalSize)), report.LocalChecksum,
			units.HumanSize(float64(report.RemoteSize)), report.RemoteChecksum)
	}

	v.logger.Debugf("Verified %s (%s)", result.URL, report.RemoteChecksum)
	return report, nil
}

func (v *Verifier) checkRetry(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
	shouldRetry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)

	url := "<no response>"
	if resp != nil && resp.Request != nil {
		url = resp.Request.URL.String()
	}
	v.logger.Debugf("Verify download %s: retry=%v ; err=%+v ; downloadErr=%+v", url, shouldRetry, err, downloadErr)

	return shouldRetry, err
}

func (v *Verifier) download(ctx context.Context, url, dest string) error {
	return retry.Times(v.downloadRetries).Wait(v.downloadRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			v.logger.Warnf("Download of %s failed, starting over (%d/%d)", url, attempt, v.downloadRetries)
		}
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove partial download: %w", err), true
		}

		downloader := got.New()
		if v.client != nil {
			downloader.Client = v.client
		}
		err := downloader.Do(got.NewDownload(ctx, url, dest))
		if err != nil && ctx.Err() != nil {
			return err, true
		}
		return err, false
	})
}

func checksumOfFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck

	return checksumOf(file)
}

func checksumOf(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
