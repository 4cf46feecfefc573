package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rescp17/noftp/pkg/fileInfo"
	"github.com/rescp17/noftp/pkg/protoerr"
)

// Chunk describes one connection's worth of a file.
type Chunk struct {
	SequenceNo uint32
	Offset     int64 // File offset
	Size       int64
	Type       SubHeaderType
	IsLast     bool
}

var (
	ErrIsDir             = errors.New("cannot chunk a directory")
	ErrInvalidPacketSize = errors.New("invalid packet size")
)

// planChunks splits a file of size bytes into chunks of at most
// packetSize bytes. A file that fits in one packet (including an empty
// file) is sent as a single CreateFile; larger files start with
// CreateFileChunked and continue with FillFileChunked. packetSize must be
// positive.
func planChunks(size, packetSize int64) []Chunk {
	if size <= packetSize {
		return []Chunk{{SequenceNo: 1, Size: size, Type: CreateFile, IsLast: true}}
	}

	chunks := make([]Chunk, 0, (size+packetSize-1)/packetSize)
	for offset := int64(0); offset < size; offset += packetSize {
		chunk := Chunk{
			SequenceNo: uint32(len(chunks) + 1),
			Offset:     offset,
			Size:       min(packetSize, size-offset),
			Type:       FillFileChunked,
		}
		if offset == 0 {
			chunk.Type = CreateFileChunked
		}
		chunk.IsLast = offset+chunk.Size >= size
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Chunker walks a source file chunk by chunk and provides the preamble
// and body reader for each one.
type Chunker struct {
	file          *os.File
	relPath       string
	totalByteSize int64
	chunks        []Chunk
	next          int
}

// NewChunkerFromSource opens src for sending in packets of packetSize
// bytes. Bounds beyond positivity are enforced by TransferConfig.Validate.
func NewChunkerFromSource(src fileInfo.SourceFile, packetSize int64) (*Chunker, error) {
	if packetSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPacketSize, packetSize)
	}
	file, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening source: %w", protoerr.ErrIOFailure, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", protoerr.ErrIOFailure, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, ErrIsDir
	}

	// the enumerated size is authoritative so the header matches the plan
	return &Chunker{
		file:          file,
		relPath:       src.RelPath,
		totalByteSize: src.Size,
		chunks:        planChunks(src.Size, packetSize),
	}, nil
}

// Next returns the next chunk, or io.EOF once every chunk was returned.
func (c *Chunker) Next() (*Chunk, error) {
	if c.next >= len(c.chunks) {
		return nil, io.EOF
	}
	chunk := c.chunks[c.next]
	c.next++
	return &chunk, nil
}

// Count is the number of chunks the file is split into.
func (c *Chunker) Count() int {
	return len(c.chunks)
}

// Preamble encodes the header and subheader announcing chunk.
func (c *Chunker) Preamble(chunk *Chunk) (header, subheader []byte, err error) {
	return EncodePreamble(chunk.Type, uint64(c.totalByteSize), uint64(chunk.Size), c.relPath)
}

// Body returns a reader over exactly the bytes of chunk.
func (c *Chunker) Body(chunk *Chunk) io.Reader {
	return io.NewSectionReader(c.file, chunk.Offset, chunk.Size)
}

func (c *Chunker) Close() error {
	return c.file.Close()
}
