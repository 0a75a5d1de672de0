package syncer

import (
	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"github.com/alexjbarnes/keepsync/internal/hashcache"
)

// Outcome is the human-readable result of a successful sync.
type Outcome string

const (
	OutcomeUpToDate      Outcome = "Files are up to date"
	OutcomeLocalMissing  Outcome = "Local file missing, copying remote"
	OutcomeRemoteMissing Outcome = "Remote file missing, copying local"
	OutcomeLocalNewer    Outcome = "Local file most recent, copying remotely"
	OutcomeRemoteNewer   Outcome = "Remote file most recent, copying locally"
)

func (o Outcome) String() string {
	return string(o)
}

// Direction says which way, if any, content has to flow.
type Direction int

const (
	// DirectionNone means both sides already hold the same content.
	DirectionNone Direction = iota

	// DirectionToLocal means the remote file overwrites the local one.
	DirectionToLocal

	// DirectionToRemote means the local file overwrites the remote one.
	DirectionToRemote
)

func (d Direction) String() string {
	switch d {
	case DirectionToLocal:
		return "to_local"
	case DirectionToRemote:
		return "to_remote"
	default:
		return "none"
	}
}

// Plan is what Decide wants done.
type Plan struct {
	Direction Direction

	// Backup is set when both sides changed since the last sync. The
	// local file must be copied aside before anything is overwritten.
	Backup bool

	Outcome Outcome
}

// Decide compares the two snapshots and returns the action to take. A
// nil snapshot means the side does not exist. It does no I/O.
//
// When both sides exist with different hashes the newer last-changed
// time wins. Equal times go to the remote side, the same as when the
// remote is strictly newer.
func Decide(local, remote *hashcache.Snapshot) (Plan, error) {
	switch {
	case local == nil && remote == nil:
		return Plan{}, kserrors.ErrNothingToSync
	case local == nil:
		return Plan{Direction: DirectionToLocal, Outcome: OutcomeLocalMissing}, nil
	case remote == nil:
		return Plan{Direction: DirectionToRemote, Outcome: OutcomeRemoteMissing}, nil
	}

	if local.Hash == remote.Hash {
		return Plan{Direction: DirectionNone, Outcome: OutcomeUpToDate}, nil
	}

	plan := Plan{Backup: local.Fresh() && remote.Fresh()}

	if local.LastChanged.After(remote.LastChanged) {
		plan.Direction = DirectionToRemote
		plan.Outcome = OutcomeLocalNewer
	} else {
		plan.Direction = DirectionToLocal
		plan.Outcome = OutcomeRemoteNewer
	}

	return plan, nil
}
