package journal

// Cache is the consumed contract for the metadata cache (spec.md §6). The
// core never constructs filesystem metadata itself; it asks the cache to
// build subtree-map events, tells it when segment boundaries move, and
// replays decoded events' side effects against it.
type Cache interface {
	// CreateSubtreeMap builds a subtree-map event reflecting current
	// authoritative state. Called whenever the Log starts a new segment.
	CreateSubtreeMap() (*Event, error)

	// AdvanceStray is called at each new segment start, before the
	// subtree-map event for that segment is submitted.
	AdvanceStray()

	// Trim is called from standby_trim_segments after it removes
	// in-memory segments; n is advisory (the core always passes -1, meaning
	// "let the cache decide its own pass size").
	Trim(n int)

	// Replay applies one decoded event's side effects. Called once per
	// event during the replay path (spec.md §4.3 step 7).
	Replay(e *Event) error
}

// DirtyRefs is the opaque, per-segment set of back-references a LogSegment
// holds into the cache's dirty indices (dirfrags, inodes, dentries,
// open-file records, parent-inode updates, dirfragtree updates). The core
// treats it as an intrusive handle set: it never inspects members, only
// asks the cache to gather flushes for them and to report when it's empty.
//
// Re-architected per spec.md §9 to avoid raw back-pointers: the segment
// holds opaque keys, and the cache looks up "which segment owns this dirty
// object" through the segments map rather than a pointer living on the
// dirty object itself.
type DirtyRefs interface {
	// Empty reports whether every dirty back-reference in this set has
	// already been flushed.
	Empty() bool

	// Gather returns a channel that closes once every pending flush this
	// set still needs has completed. prio is the object-store operation
	// priority to flush at, interpolated by try_expire's gather pattern
	// (spec.md §4.2).
	Gather(prio int) <-chan struct{}

	// Clear drops every back-reference without flushing — used by
	// standby_trim_segments, where the leader (not this follower) is
	// responsible for the actual flush.
	Clear()
}
