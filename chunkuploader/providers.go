package chunkuploader

import (
	"bytes"
	"fmt"
	"io"
)

// ReaderAtChunkProvider cuts an io.ReaderAt into fixed-size chunks.
// The last chunk holds the remainder and may be shorter than the nominal size.
type ReaderAtChunkProvider struct {
	reader    io.ReaderAt
	size      int64
	chunkSize int64
	numChunks int
}

// NewReaderAtChunkProvider creates a ChunkProvider over size bytes of reader.
func NewReaderAtChunkProvider(reader io.ReaderAt, size, chunkSize int64) (*ReaderAtChunkProvider, error) {
	if reader == nil {
		return nil, fmt.Errorf("nil reader")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid size: %d", size)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", chunkSize)
	}

	return &ReaderAtChunkProvider{
		reader:    reader,
		size:      size,
		chunkSize: chunkSize,
		numChunks: NumChunks(size, chunkSize),
	}, nil
}

// NumChunks returns the total number of chunks.
func (p *ReaderAtChunkProvider) NumChunks() int {
	return p.numChunks
}

// ChunkSize returns the size of the chunk at the given index.
func (p *ReaderAtChunkProvider) ChunkSize(index int) int64 {
	if index < 0 || index >= p.numChunks {
		return 0
	}
	if index == p.numChunks-1 {
		return p.size - int64(index)*p.chunkSize
	}
	return p.chunkSize
}

// GetChunk reads the chunk at the given index into memory.
func (p *ReaderAtChunkProvider) GetChunk(index int) (io.Reader, error) {
	if index < 0 || index >= p.numChunks {
		return nil, fmt.Errorf("chunk index %d out of range [0, %d)", index, p.numChunks)
	}

	size := p.ChunkSize(index)
	offset := int64(index) * p.chunkSize

	chunk := make([]byte, size)
	n, err := io.ReadFull(io.NewSectionReader(p.reader, offset, size), chunk)
	if err != nil {
		return nil, fmt.Errorf("read chunk %d at offset %d: %w", index, offset, err)
	}

	return bytes.NewReader(chunk[:n]), nil
}
