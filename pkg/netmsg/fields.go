package netmsg

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// MaxStringLen is the longest string a u16 length prefix can describe.
// Longer strings are cut to this many bytes when encoded.
const MaxStringLen = 1<<16 - 1

// ConnectionID identifies a logical session on the message channel.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (id ConnectionID) String() string {
	return string(id)
}

func stringLen(s string) uint32 {
	return 2 + uint32(min(len(s), MaxStringLen))
}

type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) putUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *fieldWriter) putBool(v bool) {
	if v {
		w.putUint8(1)
		return
	}
	w.putUint8(0)
}

func (w *fieldWriter) putUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *fieldWriter) putUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *fieldWriter) putString(s string) {
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	w.putUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// fieldReader decodes message bodies. Running out of bytes for a fixed
// width field sets short; string lengths are clamped instead.
type fieldReader struct {
	buf   []byte
	short bool
}

func (r *fieldReader) uint8() uint8 {
	if len(r.buf) < 1 {
		r.short = true
		return 0
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v
}

func (r *fieldReader) bool() bool {
	return r.uint8() != 0
}

func (r *fieldReader) uint16() uint16 {
	if len(r.buf) < 2 {
		r.short = true
		r.buf = nil
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf)
	r.buf = r.buf[2:]
	return v
}

func (r *fieldReader) uint32() uint32 {
	if len(r.buf) < 4 {
		r.short = true
		r.buf = nil
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *fieldReader) string() string {
	n := int(r.uint16())
	if r.short {
		return ""
	}
	n = min(n, len(r.buf))
	s := strings.ToValidUTF8(string(r.buf[:n]), "�")
	r.buf = r.buf[n:]
	return s
}

func (r *fieldReader) connectionID() ConnectionID {
	return ConnectionID(r.string())
}
