package chunkuploader

import (
	"context"
	"time"
)

const (
	// DefaultChunkSize is the nominal size of every chunk but the last one.
	DefaultChunkSize int64 = 10 * 1024 * 1024
	// DefaultMaxAttempts is the number of attempts made for one chunk before the upload is abandoned.
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff is the wait before the first retry, doubled for every further retry.
	DefaultBaseBackoff = time.Second
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// ChunkSize is the size of each chunk in bytes, the last chunk may be shorter.
	// Default: 10 MiB
	ChunkSize int64

	// MaxAttempts is the maximum number of attempts per chunk, the first one included.
	// Default: 3
	MaxAttempts int

	// BaseBackoff is the delay before the first retry of a chunk.
	// Retry n waits BaseBackoff * 2^(n-1).
	// Default: 1 second
	BaseBackoff time.Duration

	// Sleep waits between attempts. If nil, a context-aware timer is used.
	Sleep func(ctx context.Context, d time.Duration) error
	// Statuses are the progress texts. Default: EnglishStatuses
	Statuses Statuses
}

// Statuses holds the format strings of the progress texts.
// Splitting and Merging take the file name, Uploading the file name, the chunk number and the chunk count.
type Statuses struct {
	Splitting string
	Uploading string
	Merging   string
	Complete  string
}

// EnglishStatuses ...
var EnglishStatuses = Statuses{
	Splitting: "Splitting file: %s",
	Uploading: "Uploading %s - chunk %d/%d",
	Merging:   "Merging file: %s",
	Complete:  "Upload complete",
}

// JapaneseStatuses are the texts shown on the Japanese side of the site.
var JapaneseStatuses = Statuses{
	Splitting: "ファイルを分割中: %s",
	Uploading: "アップロード中: %s - チャンク %d/%d",
	Merging:   "ファイルを結合中: %s",
	Complete:  "アップロード完了!",
}

// StatusesFor returns the texts for a language code, English for anything but "ja".
func StatusesFor(lang string) Statuses {
	if lang == "ja" {
		return JapaneseStatuses
	}
	return EnglishStatuses
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   DefaultChunkSize,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		Sleep:       nil, // Will be set by Uploader
		Statuses:    EnglishStatuses,
	}
}

// NumChunks returns how many chunks of chunkSize are needed for totalSize bytes.
func NumChunks(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// Backoff returns the wait before the given retry, retry 1 being the second attempt.
func (c Config) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return c.BaseBackoff * time.Duration(1<<uint(retry-1))
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.Statuses == (Statuses{}) {
		c.Statuses = d.Statuses
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
