package journal

import "errors"

// ErrPointerNotFound means no JournalPointer object exists yet at the
// well-known name — the recovery driver treats this as "create fresh
// pointer" rather than unrecoverable (spec.md §7).
var ErrPointerNotFound = errors.New("journal: pointer not found")

// JournalPointer is the two-slot atomic pointer persisted as a single small
// object per MDS (spec.md §3). Front names the live journal object; Back is
// zero in the clean state or names a possibly-incomplete reformat target.
type JournalPointer struct {
	Front uint64
	Back  uint64
}

// PointerStore is the consumed contract for JournalPointer persistence
// (spec.md §6): a single named object in the metadata pool, loaded and
// saved synchronously under the coarse mutex.
type PointerStore interface {
	// Load reads the pointer object. It returns ErrPointerNotFound if the
	// object does not exist.
	Load(poolName string, mdsID int) (*JournalPointer, error)

	// Save persists the pointer object. A successful Save must be
	// observed by the next Load with the same (poolName, mdsID) pair,
	// even across a crash (spec.md §3 invariant).
	Save(poolName string, mdsID int, p *JournalPointer) error
}
