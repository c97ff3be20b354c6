package audio

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rodoku-audio/rodoku-tools/chunkuploader"
)

// extensionTypes is consulted when the content does not reveal an allowed type.
var extensionTypes = map[string]string{
	".aac":  "audio/aac",
	".m4a":  "audio/x-m4a",
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".wav":  "audio/wav",
	".wave": "audio/wav",
}

// LocalFile is an opened file on disk ready to be uploaded. Close it when the upload is over.
type LocalFile struct {
	chunkuploader.File
	Path string

	f *os.File
}

// Open opens path and fills in its name, size and MIME type.
func Open(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mimeType, err := DetectType(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &LocalFile{
		File: chunkuploader.File{
			Name:   filepath.Base(path),
			Type:   mimeType,
			Size:   info.Size(),
			Reader: f,
		},
		Path: path,
		f:    f,
	}, nil
}

// Close closes the underlying file.
func (l *LocalFile) Close() error {
	if l.f != nil {
		return l.f.Close()
	}
	return nil
}

// DetectType sniffs the MIME type of the file at path.
// Content wins when it matches an allowed type, otherwise the extension decides.
func DetectType(path string) (string, error) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type of %s: %w", path, err)
	}

	for m := detected; m != nil; m = m.Parent() {
		for _, t := range AllowedTypes {
			if m.Is(t) {
				return t, nil
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return stripParams(t), nil
	}

	return stripParams(detected.String()), nil
}

func stripParams(mimeType string) string {
	t, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(t)
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	repeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename makes a file name safe to use as a storage key or a local path element.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}
