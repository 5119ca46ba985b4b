package journal

import "errors"

// Error taxonomy observed by the core (spec.md §7). The core never retries
// internally; it classifies a failure as either "try again from the top of
// open/replay" or "fatal" (shut down or respawn) and lets the caller act.
var (
	// ErrTryAgain means the caller should retry the operation from the top
	// once conditions change — trimmed-ahead, not-yet-readable, or a cold
	// start that raced a peer's advance of expire_pos.
	ErrTryAgain = errors.New("journal: try again")

	// ErrCorruptEvent is returned by the codec when an event's bytes fail
	// to decode or fail their checksum.
	ErrCorruptEvent = errors.New("journal: corrupt event")

	// ErrUnrecoverable means recovery cannot proceed and the MDS should not
	// retry open() without operator intervention.
	ErrUnrecoverable = errors.New("journal: unrecoverable")

	// ErrBlacklisted marks a stream write error as fencing: this MDS has
	// been blacklisted/fenced and must respawn, not merely shut down.
	ErrBlacklisted = errors.New("journal: blacklisted")

	// ErrCapped is returned by submit_entry once the Log has been capped.
	ErrCapped = errors.New("journal: log is capped")

	// ErrNoPendingEntry is returned by submit_entry if start_entry was
	// never called for the given event.
	ErrNoPendingEntry = errors.New("journal: no pending entry")

	// ErrPendingEntryExists is returned by start_entry if a pending event
	// is already outstanding.
	ErrPendingEntryExists = errors.New("journal: pending entry already exists")

	// ErrNotReadable names a try_read_entry call made without first
	// observing is_readable(). The Stream implementations in this module do
	// not return it; they report (nil, false, nil) instead.
	ErrNotReadable = errors.New("journal: stream not readable")

	// ErrStreamNotFound is wrapped into a Stream method's returned error
	// when the backing objects are gone — on a read-only stream during
	// replay this means a peer trimmed ahead of us (spec.md §4.3, §7).
	ErrStreamNotFound = errors.New("journal: stream object not found")

	// ErrStreamInvalid is wrapped into a Stream method's returned error
	// when the stream's header or position bookkeeping is inconsistent
	// with what was read — replay must reread the head to recover
	// (spec.md §4.3, §7).
	ErrStreamInvalid = errors.New("journal: stream state invalid")
)
