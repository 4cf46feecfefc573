package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"

	"github.com/rescp17/noftp/internal/util"
	"github.com/rescp17/noftp/pkg/fileInfo"
	"github.com/rescp17/noftp/pkg/netmsg"
	"github.com/rescp17/noftp/pkg/protoerr"
	"github.com/rescp17/noftp/pkg/transfer"
)

func (s *Server) handleConn(ctx context.Context, conn net.Conn, root string) {
	res := Result{
		ID:     netmsg.NewConnectionID(),
		Remote: conn.RemoteAddr().String(),
	}
	logger := slog.With("conn", res.ID.String(), "remote", res.Remote)
	logger.Debug("Connection accepted")

	r := util.NewIdleReader(ctx, conn, s.config.IdleTimeout)
	defer func() {
		r.Release()
		if err := conn.Close(); err != nil {
			logger.Debug("Failed to close connection", "error", err)
		}
	}()

	err := s.receive(ctx, r, root, &res)
	switch {
	case err == io.EOF:
		logger.Debug("Peer closed without sending a header")
		return
	case err != nil:
		res.Err = err
		action := s.errorHandler.HandleError(res.Path, err, false)
		s.errorHandler.LogError(res.Path, err, action)
	default:
		logger.Info("Chunk received",
			"file", res.Path,
			"type", res.Type.String(),
			"size", util.FormatSize(res.Bytes))
		if res.Complete {
			logger.Info("File complete", "file", res.Path, "dest", res.Dest, "sha256", res.Checksum)
		}
	}
	s.publish(ctx, res)
}

// receive reads one preamble from r and applies its body below root.
func (s *Server) receive(ctx context.Context, r io.Reader, root string, res *Result) error {
	p, err := transfer.ReadPreamble(r, s.config.MaxSubheaderSize)
	if err != nil {
		return err
	}
	res.Path, res.Type = p.Path, p.SubheaderType

	if p.SubheaderType == transfer.CreateDirectory {
		return fmt.Errorf("%w: %s", protoerr.ErrUnsupportedOperation, p.SubheaderType)
	}
	if p.BodySize() > math.MaxInt64 || p.ContentSize > math.MaxInt64 {
		return fmt.Errorf("%w: body size %d out of range", protoerr.ErrMalformedHeader, p.BodySize())
	}

	dest, err := util.ResolveInside(root, p.Path)
	if err != nil {
		return err
	}
	res.Dest = dest

	return s.paths.Execute(ctx, dest, func() error {
		return s.writeBody(dest, p, r, res)
	})
}

func (s *Server) writeBody(dest string, p transfer.Preamble, r io.Reader, res *Result) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent of %s: %w", protoerr.ErrPathFailure, dest, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if p.SubheaderType == transfer.FillFileChunked {
		// a fill continues a file created by an earlier chunk
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %s for %s: %w", protoerr.ErrPathFailure, dest, p.SubheaderType, err)
	}

	size := int64(p.BodySize())
	buf := make([]byte, s.config.BufferSize)
	// the anonymous struct hides ReadFrom so buf sets the write granularity
	n, copyErr := io.CopyBuffer(struct{ io.Writer }{file}, io.LimitReader(r, size), buf)
	res.Bytes = n

	syncErr := file.Sync()
	closeErr := file.Close()

	switch {
	case copyErr != nil:
		return fmt.Errorf("%w: after %d of %d bytes: %w", protoerr.ErrIOFailure, n, size, copyErr)
	case n < size:
		return fmt.Errorf("%w: peer closed after %d of %d bytes", protoerr.ErrTruncatedTransfer, n, size)
	case syncErr != nil:
		return fmt.Errorf("%w: syncing %s: %w", protoerr.ErrIOFailure, dest, syncErr)
	case closeErr != nil:
		return fmt.Errorf("%w: closing %s: %w", protoerr.ErrIOFailure, dest, closeErr)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("%w: %w", protoerr.ErrIOFailure, err)
	}
	if uint64(info.Size()) == p.ContentSize {
		res.Complete = true
		sum, err := fileInfo.Checksum(dest)
		if err != nil {
			slog.Warn("Failed to checksum received file", "dest", dest, "error", err)
		}
		res.Checksum = sum
	}
	return nil
}

// IsTruncated reports whether res failed because the peer hung up early.
func (res Result) IsTruncated() bool {
	return errors.Is(res.Err, protoerr.ErrTruncatedTransfer)
}
