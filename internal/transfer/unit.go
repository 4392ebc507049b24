package transfer

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// State is the lifecycle state of a transfer unit.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateCompleted
	StateStopped
	StateError
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateInProgress: "in_progress",
	StateCompleted:  "completed",
	StateStopped:    "stopped",
	StateError:      "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", int(s))
}

// Terminal reports whether the state ends a unit's run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateError
}

// StateFromString parses the persisted form of a state. Unknown values map to idle,
// so a record written by a newer version still rehydrates as pending work.
func StateFromString(s string) State {
	for state, name := range stateNames {
		if name == s {
			return state
		}
	}

	return StateIdle
}

// Unit is one resumable download of one resource to one local file.
//
// ID is derived from the target path, so rebuilding a unit for the same target
// always yields the same id. Identity is defined by (SourceURL, TargetPath) alone;
// ItemID and TrackRef exist only for aggregation and reporting.
type Unit struct {
	ID         string
	SourceURL  string
	TargetPath string
	ItemID     string
	TrackRef   string
}

// NewUnit builds a unit for the given source and target.
func NewUnit(sourceURL, targetPath, itemID, trackRef string) *Unit {
	return &Unit{
		ID:         UnitID(targetPath),
		SourceURL:  sourceURL,
		TargetPath: targetPath,
		ItemID:     itemID,
		TrackRef:   trackRef,
	}
}

// UnitID returns the deterministic id for a target path.
func UnitID(targetPath string) string {
	sum := sha1.Sum([]byte(filepath.Clean(targetPath)))

	return hex.EncodeToString(sum[:])
}

// Equal reports whether two units refer to the same logical work.
func (u *Unit) Equal(other *Unit) bool {
	if other == nil {
		return false
	}

	return u.SourceURL == other.SourceURL && u.TargetPath == other.TargetPath
}

func (u *Unit) String() string {
	return fmt.Sprintf("<unit %s url=%s target=%s>", u.ID, u.SourceURL, u.TargetPath)
}
