package transfer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type progressCall struct {
	state State
	bytes int64
}

// recordingReporter captures every callback of a single synchronous run.
type recordingReporter struct {
	calls []progressCall
}

func (r *recordingReporter) OnProgress(_ string, state State, bytes int64) {
	r.calls = append(r.calls, progressCall{state: state, bytes: bytes})
}

func (r *recordingReporter) last() progressCall {
	return r.calls[len(r.calls)-1]
}

// deltaSum adds up every byte delta reported before the terminal callback.
func (r *recordingReporter) deltaSum() int64 {
	var sum int64
	for _, c := range r.calls {
		sum += c.bytes
	}

	return sum
}

// resourceServer serves content with range support and counts GET requests.
func resourceServer(t *testing.T, content []byte, getCount *atomic.Int32, lastRange *atomic.Value) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))

			return
		}

		if getCount != nil {
			getCount.Add(1)
		}

		rangeHeader := r.Header.Get("Range")
		if lastRange != nil {
			lastRange.Store(rangeHeader)
		}

		offset := 0

		if rangeHeader != "" {
			parsed, err := strconv.Atoi(rangeHeader[len("bytes=") : len(rangeHeader)-1])
			require.NoError(t, err)

			offset = parsed

			w.WriteHeader(http.StatusPartialContent)
		}

		_, _ = w.Write(content[offset:])
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestRunner() *Runner {
	return NewRunner(NewHTTPTransport(5*time.Second, 5*time.Second))
}

func TestRun_TransfersFullResource(t *testing.T) {
	content := bytes.Repeat([]byte("offline"), 1500)
	srv := resourceServer(t, content, nil, nil)

	target := filepath.Join(t.TempDir(), "album", "track01.flac")
	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	require.Equal(t, progressCall{state: StateInProgress, bytes: 0}, reporter.calls[0])
	require.Equal(t, progressCall{state: StateCompleted, bytes: 0}, reporter.last())
	require.Equal(t, int64(len(content)), reporter.deltaSum())

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

func TestRun_SkipsTransferWhenTargetComplete(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 4096)

	var gets atomic.Int32

	srv := resourceServer(t, content, &gets, nil)

	target := filepath.Join(t.TempDir(), "track01.flac")
	require.NoError(t, os.WriteFile(target, content, 0o644))

	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	// No transfer takes place: in_progress then straight to completed.
	require.Equal(t, []progressCall{
		{state: StateInProgress, bytes: 0},
		{state: StateCompleted, bytes: 0},
	}, reporter.calls)
	require.Equal(t, int32(0), gets.Load())
}

func TestRun_ResumesFromPartialFile(t *testing.T) {
	content := bytes.Repeat([]byte("resumable-audio-"), 1000)

	var lastRange atomic.Value

	srv := resourceServer(t, content, nil, &lastRange)

	target := filepath.Join(t.TempDir(), "track01.flac")
	require.NoError(t, os.WriteFile(target, content[:5000], 0o644))

	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	require.Equal(t, StateCompleted, reporter.last().state)
	require.Equal(t, "bytes=5000-", lastRange.Load())

	// Only the missing suffix travels over the wire.
	require.Equal(t, int64(len(content)-5000), reporter.deltaSum())

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

func TestRun_RestartsWhenLocalFileTooLong(t *testing.T) {
	content := bytes.Repeat([]byte("fresh"), 800)

	var lastRange atomic.Value

	srv := resourceServer(t, content, nil, &lastRange)

	target := filepath.Join(t.TempDir(), "track01.flac")
	stale := append(append([]byte{}, content...), []byte("trailing-garbage")...)
	require.NoError(t, os.WriteFile(target, stale, 0o644))

	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	require.Equal(t, StateCompleted, reporter.last().state)

	// The stale file was deleted, so the transfer restarts from zero.
	require.Equal(t, "", lastRange.Load())
	require.Equal(t, int64(len(content)), reporter.deltaSum())

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

func TestRun_StopsOnCancelKeepingPartialFile(t *testing.T) {
	prefix := bytes.Repeat([]byte("p"), 1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(prefix)*4))

			return
		}

		_, _ = w.Write(prefix)
		w.(http.Flusher).Flush()

		// Hold the stream open until the client gives up.
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	target := filepath.Join(t.TempDir(), "track01.flac")
	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")

	ctx, cancel := context.WithCancel(context.Background())

	reporter := &recordingReporter{}
	cancelling := ReporterFunc(func(unitID string, state State, bytes int64) {
		reporter.OnProgress(unitID, state, bytes)

		if bytes > 0 {
			cancel()
		}
	})

	runner := newTestRunner()
	runner.ReportReads = 1
	runner.Run(ctx, unit, cancelling)

	require.Equal(t, progressCall{state: StateStopped, bytes: 0}, reporter.last())

	// Every reported byte is on disk and nothing beyond that is claimed.
	info, err := os.Stat(target)
	require.NoError(t, err)
	require.Equal(t, reporter.deltaSum(), info.Size())
	require.Positive(t, info.Size())
}

func TestRun_ContinuesWithUnknownSizeWhenProbeFails(t *testing.T) {
	content := bytes.Repeat([]byte("blind"), 1000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write(content)
	}))
	t.Cleanup(srv.Close)

	target := filepath.Join(t.TempDir(), "track01.flac")
	unit := NewUnit(srv.URL+"/track01.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	require.Equal(t, StateCompleted, reporter.last().state)
	require.Equal(t, int64(len(content)), reporter.deltaSum())
}

func TestRun_ReportsErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	target := filepath.Join(t.TempDir(), "track01.flac")
	unit := NewUnit(srv.URL+"/gone.flac", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	require.Equal(t, progressCall{state: StateError, bytes: 0}, reporter.last())
}

func TestRun_ReportsErrorWhenParentDirUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	target := filepath.Join(blocker, "album", "track01.flac")
	unit := NewUnit("https://cdn.example.com/t1", target, "album-1", "t1")
	reporter := &recordingReporter{}

	newTestRunner().Run(context.Background(), unit, reporter)

	// The unit fails before ever entering in_progress.
	require.Equal(t, []progressCall{{state: StateError, bytes: 0}}, reporter.calls)
}

// scriptTransport serves a fixed sequence of read chunks, making the batching
// cadence of the copy loop deterministic.
type scriptTransport struct {
	size   int64
	chunks [][]byte
}

func (s *scriptTransport) ProbeSize(context.Context, string) (int64, error) {
	return s.size, nil
}

func (s *scriptTransport) OpenRange(context.Context, string, int64) (io.ReadCloser, error) {
	return &scriptBody{chunks: s.chunks}, nil
}

type scriptBody struct {
	chunks [][]byte
	i      int
}

func (b *scriptBody) Read(p []byte) (int, error) {
	if b.i >= len(b.chunks) {
		return 0, io.EOF
	}

	n := copy(p, b.chunks[b.i])
	b.i++

	return n, nil
}

func (b *scriptBody) Close() error { return nil }

func TestRun_BatchesProgressByReadIterations(t *testing.T) {
	chunk := []byte("12345")

	transport := &scriptTransport{size: int64(len(chunk) * 7)}
	for i := 0; i < 7; i++ {
		transport.chunks = append(transport.chunks, chunk)
	}

	target := filepath.Join(t.TempDir(), "track01.flac")
	unit := NewUnit("https://cdn.example.com/t1", target, "album-1", "t1")
	reporter := &recordingReporter{}

	runner := NewRunner(transport)
	runner.ReportReads = 3
	runner.Run(context.Background(), unit, reporter)

	// Seven 5-byte reads with a threshold of three: two full batches, then the
	// leftover flushed before the terminal callback.
	require.Equal(t, []progressCall{
		{state: StateInProgress, bytes: 0},
		{state: StateInProgress, bytes: 15},
		{state: StateInProgress, bytes: 15},
		{state: StateInProgress, bytes: 5},
		{state: StateCompleted, bytes: 0},
	}, reporter.calls)

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat(chunk, 7), written)
}
