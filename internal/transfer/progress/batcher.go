package progress

// Batcher accumulates transferred bytes and reports them after a fixed number of
// read iterations, bounding callback overhead on fast links. Zero-byte reads count
// toward the iteration counter without inflating the reported bytes, so a stalled
// connection cannot busy-loop into a flood of empty callbacks.
type Batcher struct {
	OnBatch     func(bytes int64)
	reportReads int
	reads       int
	pending     int64
}

// NewBatcher builds a batcher that fires after reportReads read iterations.
func NewBatcher(reportReads int, cb func(bytes int64)) *Batcher {
	if reportReads <= 0 {
		reportReads = 20
	}

	return &Batcher{
		OnBatch:     cb,
		reportReads: reportReads,
	}
}

// Add records one read iteration of n bytes and fires the callback when enough
// iterations carrying data have accumulated.
func (b *Batcher) Add(n int) {
	b.reads++

	if n > 0 {
		b.pending += int64(n)
	}

	if b.pending > 0 && b.reads >= b.reportReads {
		b.OnBatch(b.pending)
		b.pending = 0
		b.reads = 0
	}
}

// Pending returns the bytes accumulated since the last callback.
func (b *Batcher) Pending() int64 {
	return b.pending
}

// Flush reports any undelivered bytes. The unit calls it before its terminal
// callback so reported totals reconcile to bytes actually written.
func (b *Batcher) Flush() {
	if b.pending > 0 {
		b.OnBatch(b.pending)
		b.pending = 0
		b.reads = 0
	}
}
