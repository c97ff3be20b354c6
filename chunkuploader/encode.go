package chunkuploader

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

// EncodeDataURL encodes data as a base64 data URL, the text form the remote service expects for chunk payloads.
func EncodeDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// DecodeDataURL returns the MIME type and the raw bytes of a base64 data URL.
func DecodeDataURL(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("missing data: prefix")
	}

	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("missing payload separator")
	}

	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("only base64 data URLs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}

	return mimeType, data, nil
}

// Split reads every chunk from the provider and encodes it for transport.
// The whole source is read here so that read failures surface before any network call.
func Split(provider ChunkProvider, mimeType string) ([]Chunk, error) {
	numChunks := provider.NumChunks()
	if numChunks == 0 {
		return nil, fmt.Errorf("nothing to split")
	}

	chunks := make([]Chunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		reader, err := provider.GetChunk(i)
		if err != nil {
			return nil, fmt.Errorf("get chunk %d: %w", i, err)
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}

		if expected := provider.ChunkSize(i); int64(len(data)) != expected {
			return nil, fmt.Errorf("chunk %d size mismatch, expected %d, got %d", i, expected, len(data))
		}

		chunks = append(chunks, Chunk{
			Index: i,
			Size:  int64(len(data)),
			Data:  EncodeDataURL(mimeType, data),
		})
	}

	return chunks, nil
}
