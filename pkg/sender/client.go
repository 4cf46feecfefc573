// Package sender queues files for delivery to a receiver and sends each one
// as a sequence of chunk connections.
package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rescp17/noftp/internal/util"
	"github.com/rescp17/noftp/pkg/fileInfo"
	"github.com/rescp17/noftp/pkg/protoerr"
	"github.com/rescp17/noftp/pkg/transfer"
)

var ErrClientClosed = errors.New("client is closed")

// Job is one file to deliver to Addr.
type Job struct {
	ID     string
	Addr   string
	Source fileInfo.SourceFile
}

type Result struct {
	Job      Job
	Progress transfer.FileProgress
	Err      error
}

// Pending is a queued job whose result is not known yet.
type Pending struct {
	job    Job
	done   chan struct{}
	result Result
}

func (p *Pending) Job() Job { return p.job }

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the job finished or ctx is done. Giving up on the wait
// does not cancel the job.
func (p *Pending) Wait(ctx context.Context) Result {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return Result{Job: p.job, Err: ctx.Err()}
	}
}

func (p *Pending) resolve(res Result) {
	p.result = res
	close(p.done)
}

// Client owns one background worker that sends queued jobs strictly in
// enqueue order.
type Client struct {
	config       *transfer.TransferConfig
	errorHandler transfer.ErrorHandler
	dialer       net.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan *Pending
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewClient(config *transfer.TransferConfig) *Client {
	if config == nil {
		config = transfer.DefaultTransferConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:       config,
		errorHandler: transfer.NewDefaultErrorHandler(nil),
		ctx:          ctx,
		cancel:       cancel,
		queue:        make(chan *Pending, config.QueueSize),
		done:         make(chan struct{}),
	}
	go c.run()
	return c
}

// SetErrorHandler replaces the handler used to classify and log failures.
// It must be called before the first Enqueue.
func (c *Client) SetErrorHandler(h transfer.ErrorHandler) {
	c.errorHandler = h
}

// Enqueue adds job to the queue, blocking while the queue is full. A job
// without an ID gets a fresh UUID.
func (c *Client) Enqueue(job Job) *Pending {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	p := &Pending{job: job, done: make(chan struct{})}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		p.resolve(Result{Job: job, Err: ErrClientClosed})
		return p
	}
	c.queue <- p
	return p
}

// SendPath enumerates path and queues one job per file, then waits for all
// of them. The returned error joins every failed job's error.
func (c *Client) SendPath(ctx context.Context, addr, path string) ([]Result, error) {
	files, err := fileInfo.Enumerate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", path, err)
	}
	slog.Info("Queueing files", "path", path, "files", len(files), "size", util.FormatSize(fileInfo.TotalSize(files)))

	pending := make([]*Pending, 0, len(files))
	for _, f := range files {
		pending = append(pending, c.Enqueue(Job{Addr: addr, Source: f}))
	}

	results := make([]Result, 0, len(pending))
	var errs []error
	for _, p := range pending {
		res := p.Wait(ctx)
		results = append(results, res)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job.Source.RelPath, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Close stops accepting jobs and waits until the queue is drained.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	<-c.done
	c.cancel()
}

// Abort cancels the job in flight and fails every queued job, then waits
// for the worker to exit.
func (c *Client) Abort() {
	c.cancel()
	c.Close()
}

func (c *Client) run() {
	defer close(c.done)
	for p := range c.queue {
		if err := c.ctx.Err(); err != nil {
			p.resolve(Result{Job: p.job, Err: err})
			continue
		}
		p.resolve(c.sendFile(c.ctx, p.job))
	}
}

func (c *Client) sendFile(ctx context.Context, job Job) Result {
	res := Result{Job: job}
	logger := slog.With("job", job.ID, "file", job.Source.RelPath, "addr", job.Addr)

	chunker, err := c.newChunker(job.Source)
	if err != nil {
		res.Err = err
		res.Progress = transfer.FileProgress{Path: job.Source.RelPath, State: transfer.ChunkStateFailed, LastError: res.Err}
		c.errorHandler.LogError(job.Source.RelPath, res.Err, c.errorHandler.HandleError(job.Source.RelPath, res.Err, true))
		return res
	}
	defer chunker.Close()

	status := transfer.NewFileStatus(job.Source.RelPath, job.Source.Size, chunker.Count())
	logger.Info("Sending file",
		"size", util.FormatSize(job.Source.Size),
		"mime", job.Source.MimeType,
		"chunks", chunker.Count())

	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = c.sendChunk(ctx, job.Addr, chunker, chunk, status)
		}
		if err != nil {
			status.Fail(err)
			action := c.errorHandler.HandleError(job.Source.RelPath, err, true)
			c.errorHandler.LogError(job.Source.RelPath, err, action)
			res.Err = err
			res.Progress = status.Snapshot()
			return res
		}
		logger.Debug("Chunk sent", "seq", chunk.SequenceNo, "type", chunk.Type.String(), "size", chunk.Size)
	}

	if err := status.Transition(transfer.ChunkStateDone); err != nil {
		res.Err = err
	}
	res.Progress = status.Snapshot()
	logger.Info("File sent", "chunks", res.Progress.ChunksSent, "elapsed", res.Progress.Elapsed.Round(time.Millisecond))
	return res
}

func (c *Client) newChunker(src fileInfo.SourceFile) (*transfer.Chunker, error) {
	if !c.config.IsValidPacketSize(c.config.PacketSize) {
		return nil, fmt.Errorf("%w: %d is outside [%d, %d]", transfer.ErrInvalidPacketSize,
			c.config.PacketSize, c.config.MinPacketSize, c.config.MaxPacketSize)
	}
	return transfer.NewChunkerFromSource(src, c.config.PacketSize)
}

// sendChunk delivers one chunk over its own connection.
func (c *Client) sendChunk(ctx context.Context, addr string, chunker *transfer.Chunker, chunk *transfer.Chunk, status *transfer.FileStatus) error {
	header, subheader, err := chunker.Preamble(chunk)
	if err != nil {
		return err
	}

	if err := status.Transition(transfer.ChunkStateConnecting); err != nil {
		return err
	}
	dialCtx := ctx
	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return wrapConnError(ctx, "connecting to "+addr, err)
	}
	defer conn.Close()

	// unblock any pending write or read once the client is aborted
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := status.Transition(transfer.ChunkStateSendingHeader); err != nil {
		return err
	}
	if _, err := conn.Write(header); err != nil {
		return wrapConnError(ctx, "writing header", err)
	}

	if err := status.Transition(transfer.ChunkStateSendingSubheader); err != nil {
		return err
	}
	if _, err := conn.Write(subheader); err != nil {
		return wrapConnError(ctx, "writing subheader", err)
	}

	if err := status.Transition(transfer.ChunkStateSendingBody); err != nil {
		return err
	}
	n, err := io.Copy(conn, chunker.Body(chunk))
	if err != nil {
		return wrapConnError(ctx, fmt.Sprintf("writing body after %d of %d bytes", n, chunk.Size), err)
	}
	if n != chunk.Size {
		return fmt.Errorf("%w: source shrank to %d of %d bytes", protoerr.ErrIOFailure, n, chunk.Size)
	}

	if c.config.AwaitReceiverClose {
		if err := c.awaitClose(conn); err != nil {
			return wrapConnError(ctx, "waiting for receiver", err)
		}
	}

	if err := status.Transition(transfer.ChunkStateClosed); err != nil {
		return err
	}
	status.ChunkSent(chunk.Size)
	return nil
}

// awaitClose half-closes conn and reads until the receiver hangs up, which
// it does only after the whole body was written out.
func (c *Client) awaitClose(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return err
		}
	}
	if c.config.IdleTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.IdleTimeout)); err != nil {
			return err
		}
	}
	_, err := io.Copy(io.Discard, conn)
	return err
}

func wrapConnError(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", protoerr.ErrIOFailure, what, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", protoerr.ErrIOFailure, what, err)
}
