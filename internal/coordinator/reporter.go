package coordinator

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mediastash/offline_downloader/internal/logctx"
	"github.com/mediastash/offline_downloader/internal/transfer"
)

// OnProgress implements transfer.ProgressReporter. Units call it from their own
// goroutines; all mutation happens inside the coordinator's critical section and
// event-channel sends happen after it is released, so one slow consumer never
// blocks control operations.
func (c *Coordinator) OnProgress(unitID string, state transfer.State, bytes int64) {
	var (
		completedItem string
		failedUnit    *transfer.Unit
	)

	c.mu.Lock()

	u, ok := c.units[unitID]
	if !ok {
		c.mu.Unlock()

		return
	}

	it := c.items[u.unit.ItemID]

	if !state.Terminal() {
		u.status = transfer.StateInProgress
		u.started = true

		if bytes > 0 {
			u.bytes += bytes
			c.telemetry.AddBytesDownloaded(bytes)
		}
	} else {
		u.status = state
		c.settleLocked(u, state)

		if state == transfer.StateError && it != nil && !it.deleting {
			failedUnit = u.unit
		}

		if state == transfer.StateCompleted && it != nil && !it.deleting && !it.completed && c.itemCompletedLocked(it) {
			it.completed = true
			completedItem = u.unit.ItemID
		}

		c.admitLocked()
	}

	c.mu.Unlock()

	if c.reporter != nil {
		c.reporter.OnProgress(unitID, state, bytes)
	}

	if failedUnit != nil {
		c.OnUnitError <- failedUnit
	}

	if completedItem != "" {
		c.OnItemCompleted <- completedItem
	}
}

// settleLocked finalizes a unit run: reconciles the byte counter with the bytes
// actually on disk (correcting the aggregate downward when a stale partial file was
// deleted mid-run), persists the outcome and frees the execution slot.
func (c *Coordinator) settleLocked(u *unitState, state transfer.State) {
	logger := logctx.LoggerFromContext(c.baseCtx)

	if size, ok := diskSize(u.unit.TargetPath); ok {
		u.bytes = size
	}

	if u.done != nil {
		close(u.done)
		u.done = nil
	}

	u.cancel = nil
	c.running--

	c.telemetry.DecrementActiveUnits()
	c.telemetry.RecordUnit(state.String(), time.Since(u.startedAt))

	if err := c.catalog.PersistUnitState(u.unit.ID, state.String(), u.bytes); err != nil {
		logger.Error("failed to persist unit state", "unit_id", u.unit.ID, "err", err)
	}

	logger.Debug("unit settled",
		"unit_id", u.unit.ID,
		"state", state.String(),
		"bytes_done", humanize.Bytes(uint64(u.bytes)))
}

func (c *Coordinator) itemCompletedLocked(it *itemState) bool {
	for _, id := range it.unitIDs {
		if c.units[id].status != transfer.StateCompleted {
			return false
		}
	}

	return true
}
