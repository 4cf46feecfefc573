package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ChunkState tracks one file on the sending side. The per-chunk states
// repeat for every chunk:
//
//	Pending -> (Connecting -> SendingHeader -> SendingSubheader -> SendingBody -> Closed)* -> Done
//
// Any non-terminal state may move to Failed.
type ChunkState int

const (
	ChunkStatePending ChunkState = iota
	ChunkStateConnecting
	ChunkStateSendingHeader
	ChunkStateSendingSubheader
	ChunkStateSendingBody
	// ChunkStateClosed means the chunk connection was closed by both ends.
	ChunkStateClosed
	ChunkStateDone
	ChunkStateFailed
)

func (cs ChunkState) String() string {
	switch cs {
	case ChunkStatePending:
		return "pending"
	case ChunkStateConnecting:
		return "connecting"
	case ChunkStateSendingHeader:
		return "sending_header"
	case ChunkStateSendingSubheader:
		return "sending_subheader"
	case ChunkStateSendingBody:
		return "sending_body"
	case ChunkStateClosed:
		return "closed"
	case ChunkStateDone:
		return "done"
	case ChunkStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Done and Failed
func (cs ChunkState) IsTerminal() bool {
	return cs == ChunkStateDone || cs == ChunkStateFailed
}

// CanTransitionTo checks if a state transition is valid
func (cs ChunkState) CanTransitionTo(next ChunkState) bool {
	if cs.IsTerminal() {
		return false
	}
	if next == ChunkStateFailed {
		return true
	}

	switch cs {
	case ChunkStatePending:
		return next == ChunkStateConnecting
	case ChunkStateConnecting:
		return next == ChunkStateSendingHeader
	case ChunkStateSendingHeader:
		return next == ChunkStateSendingSubheader
	case ChunkStateSendingSubheader:
		return next == ChunkStateSendingBody
	case ChunkStateSendingBody:
		return next == ChunkStateClosed
	case ChunkStateClosed:
		return next == ChunkStateConnecting || next == ChunkStateDone
	default:
		return false
	}
}

var ErrInvalidStateTransition = errors.New("invalid state transition")

// FileStatus is the progress of one file being sent. It is safe for
// concurrent use so a caller can poll Snapshot while the worker sends.
type FileStatus struct {
	mu sync.RWMutex

	path        string
	state       ChunkState
	totalBytes  int64
	bytesSent   int64
	totalChunks int
	chunksSent  int
	lastErr     error
	startTime   time.Time
	updated     time.Time
}

// FileProgress is a point-in-time copy of a FileStatus.
type FileProgress struct {
	Path        string        `json:"path"`
	State       ChunkState    `json:"state"`
	TotalBytes  int64         `json:"total_bytes"`
	BytesSent   int64         `json:"bytes_sent"`
	TotalChunks int           `json:"total_chunks"`
	ChunksSent  int           `json:"chunks_sent"`
	LastError   error         `json:"-"`
	Elapsed     time.Duration `json:"elapsed"`
}

func NewFileStatus(path string, totalBytes int64, totalChunks int) *FileStatus {
	now := time.Now()
	return &FileStatus{
		path:        path,
		state:       ChunkStatePending,
		totalBytes:  totalBytes,
		totalChunks: totalChunks,
		startTime:   now,
		updated:     now,
	}
}

// Transition moves the file to next, or returns ErrInvalidStateTransition.
func (fs *FileStatus) Transition(next ChunkState) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, fs.state, next)
	}
	fs.state = next
	fs.updated = time.Now()
	return nil
}

// ChunkSent records a fully delivered chunk of n bytes.
func (fs *FileStatus) ChunkSent(n int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.bytesSent += n
	fs.chunksSent++
	fs.updated = time.Now()
}

// Fail moves the file to Failed and records err. Failing a file that is
// already terminal keeps its state.
func (fs *FileStatus) Fail(err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.lastErr = err
	if !fs.state.IsTerminal() {
		fs.state = ChunkStateFailed
	}
	fs.updated = time.Now()
}

func (fs *FileStatus) State() ChunkState {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.state
}

func (fs *FileStatus) Snapshot() FileProgress {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return FileProgress{
		Path:        fs.path,
		State:       fs.state,
		TotalBytes:  fs.totalBytes,
		BytesSent:   fs.bytesSent,
		TotalChunks: fs.totalChunks,
		ChunksSent:  fs.chunksSent,
		LastError:   fs.lastErr,
		Elapsed:     fs.updated.Sub(fs.startTime),
	}
}

// GetProgressPercentage calculates the completion percentage (0-100)
func (p FileProgress) GetProgressPercentage() float64 {
	if p.TotalBytes == 0 {
		if p.State == ChunkStateDone {
			return 100.0
		}
		return 0.0
	}
	return float64(p.BytesSent) / float64(p.TotalBytes) * 100.0
}

// TransferRate is the average rate in bytes per second.
func (p FileProgress) TransferRate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.BytesSent) / p.Elapsed.Seconds()
}
