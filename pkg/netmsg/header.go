package netmsg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rescp17/noftp/pkg/protoerr"
)

const (
	Magic   uint32 = 0x40F2
	Version uint8  = 1

	// HeaderSize is the fixed on-wire width of Header.
	HeaderSize = 16

	// MaxContentLen bounds the body a peer may announce, so a corrupt
	// length cannot make the reader allocate arbitrarily large buffers.
	MaxContentLen = 16 << 20
)

var ErrNotEnoughData = errors.New("not enough buffered data for a frame header")

// Kind identifies the message carried by a frame.
type Kind uint16

const (
	KindInvalid Kind = iota
	KindError
	KindSessionInitializationRequest
	KindSessionInitializationResponse
	KindFileData
	KindClearToSend
	KindFileStructure
	KindBlockHash
	KindSessionResumeRequest
	KindSessionResumeResponse
	KindMissingData
	KindCorruptData
	KindPause
	KindSessionEnd
)

// KindFromWire maps a wire code to a Kind. Unknown codes become KindInvalid.
func KindFromWire(code uint16) Kind {
	if code > uint16(KindSessionEnd) {
		return KindInvalid
	}
	return Kind(code)
}

func (k Kind) String() string {
	switch k {
	case KindError:
		return "Error"
	case KindSessionInitializationRequest:
		return "SessionInitializationRequest"
	case KindSessionInitializationResponse:
		return "SessionInitializationResponse"
	case KindFileData:
		return "FileData"
	case KindClearToSend:
		return "ClearToSend"
	case KindFileStructure:
		return "FileStructure"
	case KindBlockHash:
		return "BlockHash"
	case KindSessionResumeRequest:
		return "SessionResumeRequest"
	case KindSessionResumeResponse:
		return "SessionResumeResponse"
	case KindMissingData:
		return "MissingData"
	case KindCorruptData:
		return "CorruptData"
	case KindPause:
		return "Pause"
	case KindSessionEnd:
		return "SessionEnd"
	default:
		return "Invalid"
	}
}

// Header is the fixed-size prefix of every frame on the message channel.
type Header struct {
	Magic      uint32
	Version    uint8
	Reserved1  uint8
	Kind       Kind
	ContentLen uint32
	Reserved2  uint32
}

func NewHeader(kind Kind, contentLen uint32) Header {
	return Header{
		Magic:      Magic,
		Version:    Version,
		Kind:       kind,
		ContentLen: contentLen,
	}
}

// ParseHeader consumes HeaderSize bytes from the ring. It does not
// validate the result.
func ParseHeader(r *RingBuffer) (Header, error) {
	if r.Len() < HeaderSize {
		return Header{}, ErrNotEnoughData
	}
	return Header{
		Magic:      r.readUint32(),
		Version:    r.readUint8(),
		Reserved1:  r.readUint8(),
		Kind:       KindFromWire(r.readUint16()),
		ContentLen: r.readUint32(),
		Reserved2:  r.readUint32(),
	}, nil
}

// DecodeHeader parses a header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrNotEnoughData
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		Version:    buf[4],
		Reserved1:  buf[5],
		Kind:       KindFromWire(binary.BigEndian.Uint16(buf[6:8])),
		ContentLen: binary.BigEndian.Uint32(buf[8:12]),
		Reserved2:  binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// AppendTo appends the wire form of h to b.
func (h Header) AppendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, h.Magic)
	b = append(b, h.Version, h.Reserved1)
	b = binary.BigEndian.AppendUint16(b, uint16(h.Kind))
	b = binary.BigEndian.AppendUint32(b, h.ContentLen)
	return binary.BigEndian.AppendUint32(b, h.Reserved2)
}

// Validate reports why a header must be rejected. A rejected header
// invalidates the whole connection; no resynchronisation is attempted.
func (h Header) Validate() error {
	switch {
	case h.Magic != Magic:
		return fmt.Errorf("%w: magic %#x", protoerr.ErrMalformedHeader, h.Magic)
	case h.Version != Version:
		return fmt.Errorf("%w: version %d", protoerr.ErrMalformedHeader, h.Version)
	case h.Kind == KindInvalid:
		return fmt.Errorf("%w: invalid message kind", protoerr.ErrMalformedHeader)
	case h.ContentLen > MaxContentLen:
		return fmt.Errorf("%w: content length %d exceeds %d", protoerr.ErrMalformedHeader, h.ContentLen, MaxContentLen)
	}
	return nil
}

func (h Header) IsValid() bool {
	return h.Validate() == nil
}
