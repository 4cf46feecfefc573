package util

import (
	"context"
	"net"
	"sync"
	"time"
)

// IdleReader reads from a connection with a per-read idle deadline and
// unblocks pending reads as soon as ctx is cancelled.
type IdleReader struct {
	conn      net.Conn
	ctx       context.Context
	idle      time.Duration
	mu        sync.Mutex
	cancelled bool
	stop      func() bool
}

// NewIdleReader wraps conn. An idle duration of zero disables the idle
// deadline. Release must be called once the reader is no longer used.
func NewIdleReader(ctx context.Context, conn net.Conn, idle time.Duration) *IdleReader {
	r := &IdleReader{conn: conn, ctx: ctx, idle: idle}
	r.stop = context.AfterFunc(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cancelled = true
		_ = conn.SetReadDeadline(time.Now())
	})
	return r
}

func (r *IdleReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return 0, r.ctx.Err()
	}
	var deadline time.Time
	if r.idle > 0 {
		deadline = time.Now().Add(r.idle)
	}
	err := r.conn.SetReadDeadline(deadline)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	n, err := r.conn.Read(p)
	if err != nil && r.ctx.Err() != nil {
		return n, r.ctx.Err()
	}
	return n, err
}

// Release detaches the reader from its context.
func (r *IdleReader) Release() {
	r.stop()
}
