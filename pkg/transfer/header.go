package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/rescp17/noftp/pkg/protoerr"
)

// This file describes the bulk-transfer framing. Every connection on the
// transfer port carries exactly one preamble followed by a body:
//
//	Header (26 bytes) | SubHeader or SubHeaderChunked | body
//
// All integers are big-endian. The body length is ContentSize for
// CreateFile and PacketSize for the chunked types.

const (
	Magic = "NoFTP"

	// HeaderSize is the fixed on-wire width of Header.
	HeaderSize = len(Magic) + 4 + 8 + 8 + 1

	pathLengthSize = 8
	packetSizeSize = 8
)

// Version is the four-part protocol version carried by every header.
type Version [4]uint8

var DefaultVersion = Version{0, 0, 0, 1}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// SubHeaderType selects what the receiver does with the body.
type SubHeaderType uint8

const (
	CreateFile SubHeaderType = iota
	// CreateDirectory is reserved; receivers reject it.
	CreateDirectory
	CreateFileChunked
	FillFileChunked
)

func (t SubHeaderType) String() string {
	switch t {
	case CreateFile:
		return "create_file"
	case CreateDirectory:
		return "create_directory"
	case CreateFileChunked:
		return "create_file_chunked"
	case FillFileChunked:
		return "fill_file_chunked"
	default:
		return fmt.Sprintf("subheader_type(%d)", uint8(t))
	}
}

func (t SubHeaderType) IsValid() bool {
	return t <= FillFileChunked
}

// IsChunked reports whether the subheader carries a packet size.
func (t SubHeaderType) IsChunked() bool {
	return t == CreateFileChunked || t == FillFileChunked
}

type Header struct {
	Version       Version
	ContentSize   uint64 // size of the whole logical file
	SubheaderSize uint64
	SubheaderType SubHeaderType
}

func (h Header) Encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, Magic...)
	buf = append(buf, h.Version[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.ContentSize)
	buf = binary.BigEndian.AppendUint64(buf, h.SubheaderSize)
	return append(buf, byte(h.SubheaderType))
}

func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", protoerr.ErrMalformedHeader, HeaderSize, len(buf))
	}
	if string(buf[:len(Magic)]) != Magic {
		return Header{}, fmt.Errorf("%w: magic %q does not match", protoerr.ErrMalformedHeader, buf[:len(Magic)])
	}

	var h Header
	off := len(Magic)
	copy(h.Version[:], buf[off:off+4])
	off += 4
	h.ContentSize = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	h.SubheaderSize = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	h.SubheaderType = SubHeaderType(buf[off])
	if !h.SubheaderType.IsValid() {
		return Header{}, fmt.Errorf("%w: unknown %s", protoerr.ErrMalformedHeader, h.SubheaderType)
	}
	return h, nil
}

// SubHeader follows Header for CreateFile (and the reserved
// CreateDirectory). Path is relative and forward-slash separated.
type SubHeader struct {
	Path string
}

func (s SubHeader) Encode() []byte {
	return appendPath(make([]byte, 0, pathLengthSize+len(s.Path)), s.Path)
}

func DecodeSubHeader(buf []byte) (SubHeader, error) {
	path, err := decodePath(buf)
	if err != nil {
		return SubHeader{}, err
	}
	return SubHeader{Path: path}, nil
}

// SubHeaderChunked follows Header for CreateFileChunked and
// FillFileChunked. PacketSize is the length of this chunk's body.
type SubHeaderChunked struct {
	PacketSize uint64
	Path       string
}

func (s SubHeaderChunked) Encode() []byte {
	buf := make([]byte, 0, packetSizeSize+pathLengthSize+len(s.Path))
	buf = binary.BigEndian.AppendUint64(buf, s.PacketSize)
	return appendPath(buf, s.Path)
}

func DecodeSubHeaderChunked(buf []byte) (SubHeaderChunked, error) {
	if len(buf) < packetSizeSize {
		return SubHeaderChunked{}, fmt.Errorf("%w: chunked subheader of %d bytes", protoerr.ErrMalformedHeader, len(buf))
	}
	path, err := decodePath(buf[packetSizeSize:])
	if err != nil {
		return SubHeaderChunked{}, err
	}
	return SubHeaderChunked{
		PacketSize: binary.BigEndian.Uint64(buf[:packetSizeSize]),
		Path:       path,
	}, nil
}

func appendPath(buf []byte, path string) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(path)))
	return append(buf, path...)
}

func decodePath(buf []byte) (string, error) {
	if len(buf) < pathLengthSize {
		return "", fmt.Errorf("%w: subheader of %d bytes has no path length", protoerr.ErrMalformedHeader, len(buf))
	}
	n := binary.BigEndian.Uint64(buf[:pathLengthSize])
	rest := buf[pathLengthSize:]
	if n > uint64(len(rest)) {
		return "", fmt.Errorf("%w: path length %d exceeds subheader", protoerr.ErrMalformedHeader, n)
	}
	path := rest[:n]
	if !utf8.Valid(path) {
		return "", fmt.Errorf("%w: path is not valid UTF-8", protoerr.ErrMalformedHeader)
	}
	return string(path), nil
}

// Preamble is a decoded header together with its subheader.
type Preamble struct {
	Header
	Path       string
	PacketSize uint64 // only meaningful for chunked types
}

// BodySize is the number of body bytes that follow the preamble.
func (p Preamble) BodySize() uint64 {
	if p.SubheaderType.IsChunked() {
		return p.PacketSize
	}
	return p.ContentSize
}

// EncodePreamble builds the header and subheader for one connection.
// packetSize is ignored for non-chunked types.
func EncodePreamble(t SubHeaderType, contentSize, packetSize uint64, path string) (header, subheader []byte, err error) {
	if !t.IsValid() {
		return nil, nil, fmt.Errorf("%w: unknown %s", protoerr.ErrMalformedHeader, t)
	}
	if t.IsChunked() {
		if packetSize > contentSize {
			return nil, nil, fmt.Errorf("%w: packet size %d exceeds content size %d", protoerr.ErrMalformedHeader, packetSize, contentSize)
		}
		subheader = SubHeaderChunked{PacketSize: packetSize, Path: path}.Encode()
	} else {
		subheader = SubHeader{Path: path}.Encode()
	}

	header = Header{
		Version:       DefaultVersion,
		ContentSize:   contentSize,
		SubheaderSize: uint64(len(subheader)),
		SubheaderType: t,
	}.Encode()
	return header, subheader, nil
}

// ReadPreamble reads and decodes a header and its subheader from r.
// Subheaders announced larger than maxSubheader are rejected before any
// allocation.
func ReadPreamble(r io.Reader, maxSubheader uint64) (Preamble, error) {
	var hbuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		if err == io.EOF {
			// peer connected and left without sending anything
			return Preamble{}, io.EOF
		}
		return Preamble{}, wrapReadError(err, "header")
	}
	h, err := DecodeHeader(hbuf[:])
	if err != nil {
		return Preamble{}, err
	}
	if h.SubheaderSize > maxSubheader {
		return Preamble{}, fmt.Errorf("%w: subheader size %d exceeds %d", protoerr.ErrMalformedHeader, h.SubheaderSize, maxSubheader)
	}

	sbuf := make([]byte, h.SubheaderSize)
	if _, err := io.ReadFull(r, sbuf); err != nil {
		return Preamble{}, wrapReadError(err, "subheader")
	}

	p := Preamble{Header: h}
	if h.SubheaderType.IsChunked() {
		sub, err := DecodeSubHeaderChunked(sbuf)
		if err != nil {
			return Preamble{}, err
		}
		if sub.PacketSize > h.ContentSize {
			return Preamble{}, fmt.Errorf("%w: packet size %d exceeds content size %d", protoerr.ErrMalformedHeader, sub.PacketSize, h.ContentSize)
		}
		p.Path, p.PacketSize = sub.Path, sub.PacketSize
	} else {
		sub, err := DecodeSubHeader(sbuf)
		if err != nil {
			return Preamble{}, err
		}
		p.Path = sub.Path
	}
	return p, nil
}

func wrapReadError(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: connection closed while reading %s", protoerr.ErrTruncatedTransfer, what)
	}
	return fmt.Errorf("%w: reading %s: %w", protoerr.ErrIOFailure, what, err)
}
