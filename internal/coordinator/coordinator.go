package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mediastash/offline_downloader/internal/logctx"
	"github.com/mediastash/offline_downloader/internal/storage"
	"github.com/mediastash/offline_downloader/internal/telemetry"
	"github.com/mediastash/offline_downloader/internal/transfer"
)

// ErrUnknownItem is returned for operations on items the coordinator is not tracking.
var ErrUnknownItem = errors.New("coordinator: unknown item")

// Resource is one remote resource of an item: where to fetch it from and where to
// store it.
type Resource struct {
	SourceURL  string
	TargetPath string
	TrackRef   string
}

// Progress is the aggregate state of an item.
type Progress struct {
	BytesDone    int64
	BytesTotal   int64 // -1 until every unit has completed
	UnitsTotal   int
	UnitsDone    int
	UnitsStarted int
}

type unitState struct {
	unit      *transfer.Unit
	status    transfer.State
	bytes     int64 // cumulative bytes on disk for this unit
	queued    bool
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{} // closed when a running unit settles
}

type itemState struct {
	unitIDs   []string // enqueue order
	pending   []string // FIFO of admitted-next unit ids
	deleting  bool
	completed bool // completion has been reported
}

// Coordinator owns the mapping from items to transfer units, bounds concurrency,
// aggregates unit progress to item granularity and keeps the catalog current so the
// work queue survives a restart.
//
// All coordinator state lives behind a single mutex; unit network and disk I/O runs
// outside it, so control operations stay responsive while transfers are in flight.
type Coordinator struct {
	catalog     storage.CatalogRepository
	runner      *transfer.Runner
	maxParallel int
	telemetry   *telemetry.Telemetry
	reporter    transfer.ProgressReporter

	baseCtx context.Context

	wg sync.WaitGroup

	mu      sync.Mutex
	units   map[string]*unitState
	items   map[string]*itemState
	ring    []string // item round-robin order
	next    int      // ring cursor
	running int

	OnItemCompleted chan string
	OnUnitError     chan *transfer.Unit
}

// New builds a coordinator. ctx bounds the lifetime of every unit the coordinator
// will ever run; cancelling it stops all transfers. tel and reporter may be nil.
func New(
	ctx context.Context,
	catalog storage.CatalogRepository,
	runner *transfer.Runner,
	maxParallel int,
	tel *telemetry.Telemetry,
	reporter transfer.ProgressReporter,
) *Coordinator {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	return &Coordinator{
		catalog:     catalog,
		runner:      runner,
		maxParallel: maxParallel,
		telemetry:   tel,
		reporter:    reporter,
		baseCtx:     ctx,
		units:       make(map[string]*unitState),
		items:       make(map[string]*itemState),

		OnItemCompleted: make(chan string),
		OnUnitError:     make(chan *transfer.Unit),
	}
}

// Wait blocks until every admitted unit has settled. Pair with PauseAll (or
// cancelling the coordinator's context) for a bounded shutdown.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close closes the coordinator's event channels. Call only after Wait.
func (c *Coordinator) Close() {
	close(c.OnItemCompleted)
	close(c.OnUnitError)
}

// EnqueueItem registers the item's resources and schedules every unit that is not
// already done or queued. It is idempotent: enqueueing the same resource set twice
// creates no duplicate work, because unit identity is derived from the target path.
func (c *Coordinator) EnqueueItem(ctx context.Context, itemID string, resources []Resource) error {
	logger := logctx.LoggerFromContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	it := c.itemLocked(itemID)

	for _, res := range resources {
		unit := transfer.NewUnit(res.SourceURL, res.TargetPath, itemID, res.TrackRef)

		if existing, ok := c.units[unit.ID]; ok {
			if !existing.unit.Equal(unit) {
				// Same target claimed by a different source. The target file is
				// owned exclusively by its unit, so this resource is refused.
				logger.Warn("target path already claimed, skipping resource",
					"target", res.TargetPath, "url", res.SourceURL)

				continue
			}

			if existing.status != transfer.StateIdle || existing.queued || existing.cancel != nil {
				continue
			}

			c.queueLocked(it, existing)

			continue
		}

		state := &unitState{unit: unit, status: transfer.StateIdle}
		c.units[unit.ID] = state
		it.unitIDs = append(it.unitIDs, unit.ID)

		if err := c.catalog.TrackUnit(storage.UnitRecord{
			UnitID:     unit.ID,
			ItemID:     itemID,
			TrackRef:   res.TrackRef,
			SourceURL:  res.SourceURL,
			TargetPath: res.TargetPath,
			Status:     transfer.StateIdle.String(),
		}); err != nil {
			return fmt.Errorf("failed to track unit: %w", err)
		}

		c.queueLocked(it, state)
	}

	c.admitLocked()

	return nil
}

// Rehydrate reconstructs the pending work set from the catalog after a restart and
// schedules it, seeding per-unit byte counts from the persisted offsets.
func (c *Coordinator) Rehydrate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	itemIDs, err := c.catalog.LoadItems()
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, itemID := range itemIDs {
		records, err := c.catalog.LoadUnits(itemID)
		if err != nil {
			return fmt.Errorf("failed to load units for item %s: %w", itemID, err)
		}

		it := c.itemLocked(itemID)

		for _, rec := range records {
			if _, ok := c.units[rec.UnitID]; ok {
				continue
			}

			unit := transfer.NewUnit(rec.SourceURL, rec.TargetPath, rec.ItemID, rec.TrackRef)
			status := transfer.StateFromString(rec.Status)

			state := &unitState{unit: unit, status: status, bytes: rec.BytesDone}
			c.units[unit.ID] = state
			it.unitIDs = append(it.unitIDs, unit.ID)

			if status != transfer.StateCompleted {
				// Anything unfinished goes back to the queue; the unit resumes
				// from whatever is on disk.
				state.status = transfer.StateIdle
				c.queueLocked(it, state)
			}
		}

		logger.Info("rehydrated item", "item_id", itemID, "unit_count", len(records))
	}

	c.admitLocked()

	return nil
}

// Pause cancels the item's running units and unqueues its pending ones. It returns
// without waiting for settlement; each running unit reports stopped asynchronously.
func (c *Coordinator) Pause(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[itemID]
	if !ok {
		return ErrUnknownItem
	}

	c.pauseLocked(it)

	return nil
}

// PauseAll pauses every tracked item.
func (c *Coordinator) PauseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range c.items {
		c.pauseLocked(it)
	}
}

func (c *Coordinator) pauseLocked(it *itemState) {
	// Queued units never started, so no callback is owed for them.
	for _, id := range it.pending {
		c.units[id].queued = false
	}

	it.pending = it.pending[:0]

	for _, id := range it.unitIDs {
		if u := c.units[id]; u.cancel != nil {
			u.cancel()
		}
	}
}

// Resume re-submits every non-completed unit of the item, respecting the
// concurrency cap. Transfers pick up from the partial file size already on disk.
func (c *Coordinator) Resume(ctx context.Context, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[itemID]
	if !ok {
		return ErrUnknownItem
	}

	for _, id := range it.unitIDs {
		u := c.units[id]
		if u.status == transfer.StateCompleted || u.queued || u.cancel != nil {
			continue
		}

		u.status = transfer.StateIdle
		c.queueLocked(it, u)
	}

	c.admitLocked()

	return nil
}

// CancelAndDelete cancels the item's units, waits for them to settle, deletes their
// target files and removes the item's catalog state.
func (c *Coordinator) CancelAndDelete(ctx context.Context, itemID string) error {
	logger := logctx.LoggerFromContext(ctx)

	c.mu.Lock()

	it, ok := c.items[itemID]
	if !ok {
		c.mu.Unlock()

		return ErrUnknownItem
	}

	it.deleting = true

	for _, id := range it.pending {
		c.units[id].queued = false
	}

	it.pending = it.pending[:0]

	var settling []chan struct{}

	var targets []string

	for _, id := range it.unitIDs {
		u := c.units[id]
		targets = append(targets, u.unit.TargetPath)

		if u.cancel != nil {
			u.cancel()
			settling = append(settling, u.done)
		}
	}

	c.mu.Unlock()

	for _, done := range settling {
		<-done
	}

	c.mu.Lock()
	for _, id := range it.unitIDs {
		delete(c.units, id)
	}

	delete(c.items, itemID)
	c.removeFromRingLocked(itemID)
	c.mu.Unlock()

	for _, target := range targets {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete target file", "target", target, "err", err)
		}
	}

	if err := c.catalog.DeleteItem(itemID); err != nil {
		return fmt.Errorf("failed to delete item state: %w", err)
	}

	logger.Info("item cancelled and deleted", "item_id", itemID)

	return nil
}

// ItemProgress returns the aggregated bytes for the item. BytesTotal stays -1 until
// every unit has completed, since remote sizes are only discovered during transfer.
func (c *Coordinator) ItemProgress(itemID string) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[itemID]
	if !ok {
		return Progress{}, ErrUnknownItem
	}

	p := Progress{BytesTotal: -1, UnitsTotal: len(it.unitIDs)}

	for _, id := range it.unitIDs {
		u := c.units[id]
		p.BytesDone += u.bytes

		if u.started {
			p.UnitsStarted++
		}

		if u.status == transfer.StateCompleted {
			p.UnitsDone++
		}
	}

	if p.UnitsDone == p.UnitsTotal {
		p.BytesTotal = p.BytesDone
	}

	return p, nil
}

// Running returns the number of units currently admitted for execution.
func (c *Coordinator) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

func (c *Coordinator) itemLocked(itemID string) *itemState {
	it, ok := c.items[itemID]
	if !ok {
		it = &itemState{}
		c.items[itemID] = it
		c.ring = append(c.ring, itemID)
	}

	return it
}

func (c *Coordinator) queueLocked(it *itemState, u *unitState) {
	u.queued = true
	it.pending = append(it.pending, u.unit.ID)
}

func (c *Coordinator) removeFromRingLocked(itemID string) {
	for i, id := range c.ring {
		if id == itemID {
			c.ring = append(c.ring[:i], c.ring[i+1:]...)

			if c.next > i {
				c.next--
			}

			break
		}
	}

	if len(c.ring) > 0 {
		c.next %= len(c.ring)
	} else {
		c.next = 0
	}
}

// admitLocked starts pending units until the concurrency cap is reached, FIFO
// within an item and round-robin across items so no item starves the rest.
func (c *Coordinator) admitLocked() {
	for c.running < c.maxParallel {
		u := c.nextPendingLocked()
		if u == nil {
			return
		}

		c.startLocked(u)
	}
}

func (c *Coordinator) nextPendingLocked() *unitState {
	for i := 0; i < len(c.ring); i++ {
		idx := (c.next + i) % len(c.ring)

		it := c.items[c.ring[idx]]
		if it.deleting || len(it.pending) == 0 {
			continue
		}

		id := it.pending[0]
		it.pending = it.pending[1:]
		c.next = (idx + 1) % len(c.ring)

		u := c.units[id]
		u.queued = false

		return u
	}

	return nil
}

func diskSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}

	return info.Size(), true
}

func (c *Coordinator) startLocked(u *unitState) {
	ctx, cancel := context.WithCancel(c.baseCtx)

	u.cancel = cancel
	u.done = make(chan struct{})
	u.started = false
	u.startedAt = time.Now()
	c.running++

	c.telemetry.IncrementActiveUnits()
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runner.Run(ctx, u.unit, c)
	}()
}
