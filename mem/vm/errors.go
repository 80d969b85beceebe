package vm

import (
	"errors"
	"fmt"
)

// Bounds and validity errors. They mean the caller presented an address
// outside the current mapping of its address space.
var (
	ErrSegmentOutOfRange    = errors.New("segment out of range")
	ErrInvalidSegment       = errors.New("invalid segment")
	ErrSegmentLimitExceeded = errors.New("segment limit exceeded")
	ErrPageOutOfRange       = errors.New("page out of range")
	ErrOffsetOutOfRange     = errors.New("offset out of range")
	ErrAccessDenied         = errors.New("access denied")
	ErrProcessNotFound      = errors.New("process not found")
)

// Capacity errors, returned by segment creation and resizing. The attempted
// operation leaves all state unchanged.
var (
	ErrSegmentIDInUse     = errors.New("segment id in use")
	ErrInsufficientFrames = errors.New("insufficient frames")
	ErrOverlapDetected    = errors.New("overlap detected")
	ErrProcessExists      = errors.New("process exists")
)

// ErrNoFrameAvailable is reported when every frame is pinned and a page
// fault cannot be served.
var ErrNoFrameAvailable = errors.New("no frame available")

// ErrBookkeeping marks a violation of the frame ownership invariants. It is a
// defect, not a user error.
var ErrBookkeeping = errors.New("bookkeeping error")

// ErrSwapIO wraps failures of the swap store.
var ErrSwapIO = errors.New("swap i/o error")

// Bookkeepingf formats a bookkeeping error.
func Bookkeepingf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBookkeeping}, args...)...)
}

// ErrorKind groups errors by how the caller is expected to react.
type ErrorKind int

// The error kinds.
const (
	KindUnknown ErrorKind = iota
	KindBounds
	KindCapacity
	KindExhausted
	KindBookkeeping
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindBounds:
		return "bounds"
	case KindCapacity:
		return "capacity"
	case KindExhausted:
		return "exhausted"
	case KindBookkeeping:
		return "bookkeeping"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrBookkeeping, KindBookkeeping},
	{ErrNoFrameAvailable, KindExhausted},
	{ErrSwapIO, KindIO},
	{ErrSegmentIDInUse, KindCapacity},
	{ErrInsufficientFrames, KindCapacity},
	{ErrOverlapDetected, KindCapacity},
	{ErrProcessExists, KindCapacity},
	{ErrSegmentOutOfRange, KindBounds},
	{ErrInvalidSegment, KindBounds},
	{ErrSegmentLimitExceeded, KindBounds},
	{ErrPageOutOfRange, KindBounds},
	{ErrOffsetOutOfRange, KindBounds},
	{ErrAccessDenied, KindBounds},
	{ErrProcessNotFound, KindBounds},
}

// KindOf classifies an error returned by the memory subsystem.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return KindUnknown
}
