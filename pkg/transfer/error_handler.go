package transfer

import (
	"log/slog"

	"github.com/rescp17/noftp/pkg/protoerr"
)

// ErrorCategory represents the category of an error for handling purposes
type ErrorCategory int

const (
	// ErrorCategoryProtocol covers a peer that violated the framing.
	ErrorCategoryProtocol ErrorCategory = iota
	// ErrorCategoryPeer covers a peer that went away or stalled.
	ErrorCategoryPeer
	// ErrorCategoryLocal covers local filesystem or path problems.
	ErrorCategoryLocal
	// ErrorCategoryShutdown covers cancellation by our own lifecycle.
	ErrorCategoryShutdown
)

func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryProtocol:
		return "protocol"
	case ErrorCategoryPeer:
		return "peer"
	case ErrorCategoryLocal:
		return "local"
	case ErrorCategoryShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ErrorAction represents the action to take when an error occurs
type ErrorAction int

const (
	// ErrorActionDrop closes the offending connection; the server keeps accepting.
	ErrorActionDrop ErrorAction = iota
	// ErrorActionFail marks the file as failed and skips its remaining chunks.
	ErrorActionFail
	// ErrorActionCancel stops all remaining work.
	ErrorActionCancel
)

// String returns a string representation of ErrorAction
func (ea ErrorAction) String() string {
	switch ea {
	case ErrorActionDrop:
		return "drop"
	case ErrorActionFail:
		return "fail"
	case ErrorActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ErrorHandler defines the interface for handling transfer errors
type ErrorHandler interface {
	// HandleError determines what action to take for a given error.
	// sending distinguishes the sender side from the receiver side.
	HandleError(filePath string, err error, sending bool) ErrorAction

	// CategorizeError determines the category of an error
	CategorizeError(err error) ErrorCategory

	// LogError logs an error with appropriate context
	LogError(filePath string, err error, action ErrorAction)
}

// DefaultErrorHandler keeps failures local: a receiver drops the
// connection, a sender fails the file, and only shutdown cancels.
type DefaultErrorHandler struct {
	logger *slog.Logger
}

func NewDefaultErrorHandler(logger *slog.Logger) *DefaultErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultErrorHandler{logger: logger}
}

func (h *DefaultErrorHandler) HandleError(filePath string, err error, sending bool) ErrorAction {
	if h.CategorizeError(err) == ErrorCategoryShutdown {
		return ErrorActionCancel
	}
	if sending {
		return ErrorActionFail
	}
	return ErrorActionDrop
}

// CategorizeError determines the category of an error
func (h *DefaultErrorHandler) CategorizeError(err error) ErrorCategory {
	switch protoerr.KindOf(err) {
	case protoerr.KindMalformedHeader, protoerr.KindUnsupportedOperation:
		return ErrorCategoryProtocol
	case protoerr.KindTruncatedTransfer:
		return ErrorCategoryPeer
	case protoerr.KindPathFailure:
		return ErrorCategoryLocal
	case protoerr.KindCancelled:
		return ErrorCategoryShutdown
	case protoerr.KindIOFailure:
		// network and disk failures are both wrapped as I/O failures
		return ErrorCategoryPeer
	default:
		return ErrorCategoryLocal
	}
}

// LogError logs an error with appropriate context
func (h *DefaultErrorHandler) LogError(filePath string, err error, action ErrorAction) {
	logFields := []any{
		"file", filePath,
		"error", err,
		"kind", protoerr.KindOf(err).String(),
		"category", h.CategorizeError(err).String(),
		"action", action.String(),
	}

	switch action {
	case ErrorActionDrop:
		h.logger.Warn("Dropping connection", logFields...)
	case ErrorActionFail:
		h.logger.Error("Transfer failed", logFields...)
	case ErrorActionCancel:
		h.logger.Info("Transfer cancelled", logFields...)
	default:
		h.logger.Error("Transfer error with unknown action", logFields...)
	}
}
