package journal

// LogSegment is the in-memory record of one contiguous range of the journal
// (spec.md §3). Offset is its identity and never changes; End grows only
// while the segment is current. Lifecycle state (active/expiring/expired)
// is not stored on the segment itself — it is set membership, tracked by
// the owning Log's segments/expiring/expired maps, so "which segments are
// expiring" is always answerable by one map lookup rather than a scattered
// field.
type LogSegment struct {
	Offset    uint64
	End       uint64
	NumEvents int

	dirty DirtyRefs
}

func newLogSegment(offset uint64, dirty DirtyRefs) *LogSegment {
	return &LogSegment{Offset: offset, End: offset, dirty: dirty}
}

// empty reports whether every dirty back-reference this segment holds has
// already been flushed — the fast path of try_expire (spec.md §4.2).
func (s *LogSegment) empty() bool {
	return s.dirty == nil || s.dirty.Empty()
}
