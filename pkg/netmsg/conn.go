package netmsg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rescp17/noftp/internal/util"
	"github.com/rescp17/noftp/pkg/protoerr"
)

// ReadMessage reads one frame from r.
//
// Bytes are received into ring until a full header is buffered. The body
// is assembled from whatever the ring already holds plus one exact read of
// the remainder from r. Any bytes of the following frame stay in ring for
// the next call. body is a scratch buffer that grows and is never shrunk.
//
// A clean end of stream before the first header byte returns io.EOF. After
// a malformed header the connection must be closed by the caller.
func ReadMessage(r io.Reader, ring *RingBuffer, body *[]byte) (Header, Message, error) {
	for ring.Len() < HeaderSize {
		n, err := r.Read(ring.Writable())
		if n > 0 {
			ring.Written(n)
		}
		if err != nil && ring.Len() < HeaderSize {
			if errors.Is(err, io.EOF) {
				if ring.Len() == 0 {
					return Header{}, nil, io.EOF
				}
				return Header{}, nil, fmt.Errorf("%w: stream ended after %d header bytes", protoerr.ErrTruncatedTransfer, ring.Len())
			}
			return Header{}, nil, fmt.Errorf("%w: reading header: %w", protoerr.ErrIOFailure, err)
		}
	}

	header, err := ParseHeader(ring)
	if err != nil {
		return Header{}, nil, err
	}
	if err := header.Validate(); err != nil {
		return header, nil, err
	}

	n := int(header.ContentLen)
	if len(*body) < n {
		*body = make([]byte, n)
	}
	content := (*body)[:n]

	buffered := ring.MoveContent(n, content)
	if buffered < n {
		if _, err := io.ReadFull(r, content[buffered:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return header, nil, fmt.Errorf("%w: %s body declared %d bytes", protoerr.ErrTruncatedTransfer, header.Kind, n)
			}
			return header, nil, fmt.Errorf("%w: reading %s body: %w", protoerr.ErrIOFailure, header.Kind, err)
		}
	}

	msg, err := ParseMessage(header, content)
	if err != nil {
		return header, nil, err
	}
	return header, msg, nil
}

// WriteMessage writes the complete frame for m to w.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(Marshal(m)); err != nil {
		return fmt.Errorf("%w: writing %s: %w", protoerr.ErrIOFailure, m.Kind(), err)
	}
	return nil
}

// Conn is a message-channel connection: a socket plus the receive ring
// and scratch body buffer that outlive individual frames.
type Conn struct {
	conn        net.Conn
	ring        *RingBuffer
	body        []byte
	idleTimeout time.Duration
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		ring: NewRingBuffer(),
	}
}

// SetIdleTimeout bounds every socket read. Zero disables the bound.
func (c *Conn) SetIdleTimeout(d time.Duration) {
	c.idleTimeout = d
}

// ReadMessage reads the next frame. Cancelling ctx unblocks a pending read.
func (c *Conn) ReadMessage(ctx context.Context) (Header, Message, error) {
	r := util.NewIdleReader(ctx, c.conn, c.idleTimeout)
	defer r.Release()

	header, msg, err := ReadMessage(r, c.ring, &c.body)
	if err != nil {
		return header, nil, err
	}
	slog.Debug("Received message", "kind", header.Kind, "content_len", header.ContentLen, "remote", c.conn.RemoteAddr())
	return header, msg, nil
}

// WriteMessage sends m. Cancelling ctx interrupts a blocked write.
func (c *Conn) WriteMessage(ctx context.Context, m Message) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := WriteMessage(c.conn, m); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", protoerr.ErrIOFailure, ctx.Err())
		}
		return err
	}
	slog.Debug("Sent message", "kind", m.Kind(), "content_len", m.ContentLen(), "remote", c.conn.RemoteAddr())
	return nil
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
