package transfer

import (
	"context"
	"errors"
	"fmt"
)

// SizeUnknown is the sentinel remote size used when the probe fails or the server
// does not report a length.
const SizeUnknown int64 = -1

// SetupError represents failures preparing the local target before any network
// activity, such as not being able to create the parent directory.
type SetupError struct {
	TargetPath string // Local path that could not be prepared
	Err        error  // Underlying error, if any
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed for %s: %v", e.TargetPath, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ProbeError represents a failed remote-size probe. Probes are best-effort: the
// unit downgrades to unknown-size mode instead of failing the run.
type ProbeError struct {
	URL string // Resource whose size could not be determined
	Err error  // Underlying error, if any
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("size probe failed for %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TransferError represents a fatal mid-stream failure: an HTTP status >= 400, a
// connection error, or a disk write error.
type TransferError struct {
	URL        string // Resource being transferred
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *TransferError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transfer failed for %s (HTTP %d)", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("transfer failed for %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// isCancellation reports whether err is the cooperative stop signal surfacing as an
// interrupted I/O condition.
func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return ctx.Err() != nil
}
