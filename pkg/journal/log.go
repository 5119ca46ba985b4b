package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/thorstenb/ceph/pkg/metrics"
	"github.com/thorstenb/ceph/util"
)

// Options configures a Log. Values come from pkg/config, already normalized.
type Options struct {
	MDSID             int
	LayoutPeriod      int64
	MaxEvents         int
	MaxSegments       int
	MaxExpiring       int
	TrimBudget        time.Duration
	MinFormat         int
	SkipCorruptEvents bool
	DebugSubtreeTest  bool
}

// StreamFactory constructs a Stream bound to the given object id (front or
// back ino, per default_ino/backup_ino). The recovery driver is the only
// caller that needs to open a stream by arbitrary ino.
type StreamFactory func(ino uint64) Stream

// Log is the in-memory journal core (spec.md §2). It owns the segment map
// and the positions exposed through the stream; the append, trim, replay,
// and recovery paths are all methods on it so they share one coarse mutex.
type Log struct {
	lock         *CoarseMutex
	stream       Stream
	cache        Cache
	codec        EventCodec
	opts         Options
	pointerStore PointerStore
	poolName     string
	newStream    StreamFactory

	// order holds segment offsets ascending. New segments are always
	// created at the current write_pos, which is always >= every existing
	// offset, so append keeps it sorted without a search.
	order    []uint64
	segments map[uint64]*LogSegment
	expiring map[uint64]*LogSegment
	expired  map[uint64]*LogSegment

	numEvents      int
	expiringEvents int
	expiredEvents  int

	capped       bool
	replaying    bool
	resolveState ResolveState
	pending      *Event

	respawn  RespawnFunc
	shutdown ShutdownFunc
}

// NewLog wires a Log to its stream factory, pointer store, and cache. The
// caller must call Open (recovery.go) before the append/trim paths are
// used — it is what resolves and assigns l.stream.
func NewLog(lock *CoarseMutex, newStream StreamFactory, pointerStore PointerStore, poolName string, cache Cache, opts Options) *Log {
	return &Log{
		lock:         lock,
		newStream:    newStream,
		pointerStore: pointerStore,
		poolName:     poolName,
		cache:        cache,
		opts:         opts,
		segments:     make(map[uint64]*LogSegment),
		expiring:     make(map[uint64]*LogSegment),
		expired:      make(map[uint64]*LogSegment),
	}
}

// SetResolveState records whether the MDS is currently in the resolve state,
// which changes the segment-rollover rule for ImportFinish (spec.md §4.1).
func (l *Log) SetResolveState(s ResolveState) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.resolveState = s
}

// SetReplaying marks whether the MDS is in any replay state; submit_entry
// refuses new writes while this is set (spec.md §4.1 precondition).
func (l *Log) SetReplaying(v bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.replaying = v
}

// HasCurrentSegment reports whether the Log has any segment open for
// appends yet. A freshly opened, empty journal has none until
// PrepareNewSegment is called.
func (l *Log) HasCurrentSegment() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.currentSegment() != nil
}

func (l *Log) currentSegment() *LogSegment {
	if len(l.order) == 0 {
		return nil
	}
	return l.segments[l.order[len(l.order)-1]]
}

// StartEntry marks e as pending. At most one event may be pending at a
// time — the caller must submit_entry it (or let it fail) before starting
// another.
func (l *Log) StartEntry(e *Event) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.startEntryLocked(e)
}

func (l *Log) startEntryLocked(e *Event) error {
	if l.pending != nil {
		return ErrPendingEntryExists
	}
	_, _, _, writePos := l.stream.Positions()
	e.Start = writePos
	e.Timestamp = time.Now().UnixNano()
	l.pending = e
	return nil
}

// SubmitEntry encodes e, appends it to the stream, attributes it to the
// current segment, and applies the segment-rollover policy (spec.md §4.1).
// onSafe, if non-nil, fires once the event is durable; it runs on its own
// goroutine so the caller never blocks on stream durability while holding
// the coarse mutex.
func (l *Log) SubmitEntry(e *Event, onSafe func(error)) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.submitEntryLocked(e, onSafe)
}

func (l *Log) submitEntryLocked(e *Event, onSafe func(error)) error {
	if l.pending != e {
		return ErrNoPendingEntry
	}
	if l.capped {
		l.pending = nil
		return ErrCapped
	}
	if l.replaying {
		l.pending = nil
		return fmt.Errorf("journal: submit_entry while replaying: %w", ErrTryAgain)
	}

	current := l.currentSegment()
	if current == nil {
		return fmt.Errorf("journal: submit_entry with no current segment")
	}

	payload, err := l.codec.Encode(e)
	if err != nil {
		l.pending = nil
		return err
	}

	start, err := l.stream.AppendEntry(payload)
	if err != nil {
		l.pending = nil
		return fmt.Errorf("journal: append entry: %w", err)
	}

	e.Start = start
	e.End = start + uint64(len(payload))
	e.segment = current
	current.NumEvents++
	current.End = e.End

	l.numEvents++
	l.pending = nil

	metrics.EventsAdded.Inc()
	metrics.CurrentEvents.Set(float64(l.numEvents))

	if onSafe != nil {
		target := e.End
		go func() {
			submitted := time.Now()
			err := l.stream.WaitForFlush(context.Background(), target)
			metrics.ObserveAppendLatency(time.Since(submitted).Seconds())
			onSafe(err)
		}()
	}

	return l.applyRolloverPolicy(e, current)
}

// applyRolloverPolicy implements the three-way segment-boundary decision of
// spec.md §4.1. It runs immediately after an event has been durably
// attributed to the current segment, still under the coarse mutex.
func (l *Log) applyRolloverPolicy(e *Event, current *LogSegment) error {
	switch {
	case e.Kind == SubtreeMap:
		return nil
	case e.Kind == ImportFinish && l.resolveState == StateResolve:
		return nil
	}

	_, _, _, writePos := l.stream.Positions()
	if writePos/uint64(l.opts.LayoutPeriod) != current.Offset/uint64(l.opts.LayoutPeriod) {
		return l.prepareNewSegment()
	}

	if l.opts.DebugSubtreeTest && e.Kind != SubtreeMapTest {
		test := &Event{Kind: SubtreeMapTest}
		if err := l.startEntryLocked(test); err != nil {
			return err
		}
		return l.submitEntryLocked(test, nil)
	}

	return nil
}

// PrepareNewSegment allocates a LogSegment at write_pos and submits its
// opening subtree-map event in one step — the reference implementation
// treats "open the segment" and "journal its subtree map" as atomic because
// a segment with no subtree-map event is not replayable (spec.md §4.1).
// Exported for callers such as cmd/mdsjournal, which open the journal's
// first segment after Open and Replay leave the Log with none.
func (l *Log) PrepareNewSegment() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.prepareNewSegment()
}

func (l *Log) prepareNewSegment() error {
	_, _, _, writePos := l.stream.Positions()

	seg := newLogSegment(writePos, nil)
	l.segments[seg.Offset] = seg
	l.order = append(l.order, seg.Offset)

	metrics.SegmentsAdded.Inc()
	metrics.CurrentSegments.Set(float64(len(l.segments)))

	l.cache.AdvanceStray()

	mapEvent, err := l.cache.CreateSubtreeMap()
	if err != nil {
		return fmt.Errorf("journal: create subtree map: %w", err)
	}
	mapEvent.Kind = SubtreeMap

	if err := l.startEntryLocked(mapEvent); err != nil {
		return err
	}
	return l.submitEntryLocked(mapEvent, nil)
}

// Cap forbids any further submit_entry calls. Used when the MDS is shutting
// down its journal for good (spec.md §4.1).
func (l *Log) Cap() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.capped = true
	_, _, _, writePos := l.stream.Positions()
	util.Info("journal: capped at write_pos=%d", writePos)
}
