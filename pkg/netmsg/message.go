package netmsg

import (
	"fmt"

	"github.com/rescp17/noftp/pkg/protoerr"
)

// Message is one of the closed set of bodies carried on the message
// channel. ContentLen must equal the number of bytes marshal appends,
// otherwise framing desynchronises for the rest of the connection.
type Message interface {
	Kind() Kind
	ContentLen() uint32
	marshal(w *fieldWriter)
}

type ErrorMessage struct {
	Message string
}

type SessionInitializationRequest struct {
	ID ConnectionID
}

type SessionInitializationResponse struct {
	ID     ConnectionID
	Accept bool
}

type SessionResumeRequest struct {
	ID ConnectionID
}

type SessionResumeResponse struct {
	ID     ConnectionID
	Accept bool
}

// Signal-only kinds. Their bodies are empty until the transfer channel
// grows fields for them.
type (
	FileData      struct{}
	ClearToSend   struct{}
	FileStructure struct{}
	BlockHash     struct{}
	MissingData   struct{}
	CorruptData   struct{}
	Pause         struct{}
	SessionEnd    struct{}
)

func (ErrorMessage) Kind() Kind                  { return KindError }
func (SessionInitializationRequest) Kind() Kind  { return KindSessionInitializationRequest }
func (SessionInitializationResponse) Kind() Kind { return KindSessionInitializationResponse }
func (SessionResumeRequest) Kind() Kind          { return KindSessionResumeRequest }
func (SessionResumeResponse) Kind() Kind         { return KindSessionResumeResponse }
func (FileData) Kind() Kind                      { return KindFileData }
func (ClearToSend) Kind() Kind                   { return KindClearToSend }
func (FileStructure) Kind() Kind                 { return KindFileStructure }
func (BlockHash) Kind() Kind                     { return KindBlockHash }
func (MissingData) Kind() Kind                   { return KindMissingData }
func (CorruptData) Kind() Kind                   { return KindCorruptData }
func (Pause) Kind() Kind                         { return KindPause }
func (SessionEnd) Kind() Kind                    { return KindSessionEnd }

func (m ErrorMessage) ContentLen() uint32 { return stringLen(m.Message) }
func (m ErrorMessage) marshal(w *fieldWriter) {
	w.putString(m.Message)
}

func (m SessionInitializationRequest) ContentLen() uint32 { return stringLen(string(m.ID)) }
func (m SessionInitializationRequest) marshal(w *fieldWriter) {
	w.putString(string(m.ID))
}

func (m SessionInitializationResponse) ContentLen() uint32 { return stringLen(string(m.ID)) + 1 }
func (m SessionInitializationResponse) marshal(w *fieldWriter) {
	w.putString(string(m.ID))
	w.putBool(m.Accept)
}

func (m SessionResumeRequest) ContentLen() uint32 { return stringLen(string(m.ID)) }
func (m SessionResumeRequest) marshal(w *fieldWriter) {
	w.putString(string(m.ID))
}

func (m SessionResumeResponse) ContentLen() uint32 { return stringLen(string(m.ID)) + 1 }
func (m SessionResumeResponse) marshal(w *fieldWriter) {
	w.putString(string(m.ID))
	w.putBool(m.Accept)
}

func (FileData) ContentLen() uint32      { return 0 }
func (ClearToSend) ContentLen() uint32   { return 0 }
func (FileStructure) ContentLen() uint32 { return 0 }
func (BlockHash) ContentLen() uint32     { return 0 }
func (MissingData) ContentLen() uint32   { return 0 }
func (CorruptData) ContentLen() uint32   { return 0 }
func (Pause) ContentLen() uint32         { return 0 }
func (SessionEnd) ContentLen() uint32    { return 0 }

func (FileData) marshal(*fieldWriter)      {}
func (ClearToSend) marshal(*fieldWriter)   {}
func (FileStructure) marshal(*fieldWriter) {}
func (BlockHash) marshal(*fieldWriter)     {}
func (MissingData) marshal(*fieldWriter)   {}
func (CorruptData) marshal(*fieldWriter)   {}
func (Pause) marshal(*fieldWriter)         {}
func (SessionEnd) marshal(*fieldWriter)    {}

// Marshal returns the complete frame (header and body) for m.
func Marshal(m Message) []byte {
	n := m.ContentLen()
	w := fieldWriter{buf: make([]byte, 0, HeaderSize+int(n))}
	w.buf = NewHeader(m.Kind(), n).AppendTo(w.buf)
	m.marshal(&w)
	return w.buf
}

// ParseMessage decodes body according to the kind announced in h.
// Declared string lengths are clamped to the bytes present in body; a
// body too short for a fixed-width field is rejected.
func ParseMessage(h Header, body []byte) (Message, error) {
	r := fieldReader{buf: body}

	var msg Message
	switch h.Kind {
	case KindError:
		msg = ErrorMessage{Message: r.string()}
	case KindSessionInitializationRequest:
		msg = SessionInitializationRequest{ID: r.connectionID()}
	case KindSessionInitializationResponse:
		id := r.connectionID()
		msg = SessionInitializationResponse{ID: id, Accept: r.bool()}
	case KindSessionResumeRequest:
		msg = SessionResumeRequest{ID: r.connectionID()}
	case KindSessionResumeResponse:
		id := r.connectionID()
		msg = SessionResumeResponse{ID: id, Accept: r.bool()}
	case KindFileData:
		msg = FileData{}
	case KindClearToSend:
		msg = ClearToSend{}
	case KindFileStructure:
		msg = FileStructure{}
	case KindBlockHash:
		msg = BlockHash{}
	case KindMissingData:
		msg = MissingData{}
	case KindCorruptData:
		msg = CorruptData{}
	case KindPause:
		msg = Pause{}
	case KindSessionEnd:
		msg = SessionEnd{}
	default:
		return nil, fmt.Errorf("%w: invalid message kind", protoerr.ErrMalformedHeader)
	}

	if r.short {
		return nil, fmt.Errorf("%w: %s body of %d bytes is too short", protoerr.ErrMalformedHeader, h.Kind, len(body))
	}
	return msg, nil
}
