package transfer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mediastash/offline_downloader/internal/logctx"
	"github.com/mediastash/offline_downloader/internal/transfer/progress"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	defaultBufferSize  = 32 * 1024
	defaultReportEvery = 20
)

// Runner executes units against a transport. BufferSize is the read buffer for the
// copy loop; ReportReads is how many read iterations accumulate between progress
// callbacks.
type Runner struct {
	Transport   Transport
	BufferSize  int
	ReportReads int
}

// NewRunner builds a runner with default buffer and batching settings.
func NewRunner(transport Transport) *Runner {
	return &Runner{
		Transport:   transport,
		BufferSize:  defaultBufferSize,
		ReportReads: defaultReportEvery,
	}
}

// Run performs one resumable download of the unit's resource to its target file.
//
// Every run ends with exactly one terminal callback (completed, stopped or error);
// byte deltas reported along the way always correspond to bytes already written to
// disk. Cancellation of ctx is observed at the next blocking I/O boundary and
// settles the unit into the stopped state, keeping partial bytes for a later resume.
func (r *Runner) Run(ctx context.Context, u *Unit, reporter ProgressReporter) {
	logger := logctx.LoggerFromContext(ctx).With("unit_id", u.ID, "target", u.TargetPath)

	logger.Debug("starting unit", "url", u.SourceURL)

	if err := os.MkdirAll(filepath.Dir(u.TargetPath), dirPerm); err != nil {
		logger.Error("failed to create parent directory", "err", &SetupError{TargetPath: u.TargetPath, Err: err})
		reporter.OnProgress(u.ID, StateError, 0)

		return
	}

	reporter.OnProgress(u.ID, StateInProgress, 0)

	remoteSize, err := r.Transport.ProbeSize(ctx, u.SourceURL)
	if err != nil {
		if isCancellation(ctx, err) {
			logger.Debug("unit cancelled during size probe")
			reporter.OnProgress(u.ID, StateStopped, 0)

			return
		}

		// Best-effort probe: degrade to unknown-size mode and carry on.
		logger.Warn("size probe failed, continuing with unknown size", "err", err)

		remoteSize = SizeUnknown
	}

	localSize := localFileSize(u.TargetPath)

	if remoteSize >= 0 && localSize == remoteSize {
		// Already complete, nothing to transfer.
		reporter.OnProgress(u.ID, StateCompleted, 0)

		return
	}

	if remoteSize >= 0 && localSize > remoteSize {
		// Stale or corrupted partial file. Delete and start over.
		logger.Warn("local file is longer than remote, deleting target", "local_size", localSize, "remote_size", remoteSize)

		if err := os.Remove(u.TargetPath); err != nil {
			logger.Warn("failed to delete target", "err", err)
		}

		localSize = 0
	}

	body, err := r.Transport.OpenRange(ctx, u.SourceURL, localSize)
	if err != nil {
		if isCancellation(ctx, err) {
			logger.Debug("unit cancelled while connecting")
			reporter.OnProgress(u.ID, StateStopped, 0)

			return
		}

		logger.Error("failed to open resource", "err", err)
		reporter.OnProgress(u.ID, StateError, 0)

		return
	}
	defer safeClose(body)

	out, err := os.OpenFile(u.TargetPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		logger.Error("failed to open target for append", "err", &SetupError{TargetPath: u.TargetPath, Err: err})
		reporter.OnProgress(u.ID, StateError, 0)

		return
	}
	defer safeClose(out)

	terminal := r.copyLoop(ctx, u, body, out, reporter, logger)

	reporter.OnProgress(u.ID, terminal, 0)
}

// copyLoop streams the body into the target file, emitting batched progress. It
// returns the terminal state and flushes any undelivered bytes before returning.
func (r *Runner) copyLoop(ctx context.Context, u *Unit, body io.Reader, out *os.File, reporter ProgressReporter, logger *slog.Logger) State {
	bufferSize := r.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	batcher := progress.NewBatcher(r.ReportReads, func(n int64) {
		reporter.OnProgress(u.ID, StateInProgress, n)
	})
	defer batcher.Flush()

	buf := make([]byte, bufferSize)

	for {
		n, readErr := body.Read(buf)

		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				logger.Error("failed to write target file", "err", &TransferError{URL: u.SourceURL, Err: writeErr})

				return StateError
			}
		}

		batcher.Add(n)

		if readErr != nil {
			switch {
			case readErr == io.EOF:
				return StateCompleted
			case isCancellation(ctx, readErr):
				logger.Debug("unit cancelled mid-transfer")

				return StateStopped
			default:
				logger.Error("failed to read resource", "err", &TransferError{URL: u.SourceURL, Err: readErr})

				return StateError
			}
		}
	}
}

// localFileSize returns the size of the possibly partial target, or 0 if absent.
func localFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}

// safeClose releases a resource ignoring errors, so closing on every exit path is
// silent even when the resource was already closed.
func safeClose(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
