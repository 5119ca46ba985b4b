package journal

import (
	"testing"
)

func newTestLog(t *testing.T, opts Options) (*Log, *fakeStream, *fakeCache) {
	t.Helper()
	stream := newFakeStream()
	cache := &fakeCache{}
	l := &Log{
		lock:     NewCoarseMutex(),
		stream:   stream,
		cache:    cache,
		opts:     opts,
		segments: make(map[uint64]*LogSegment),
		expiring: make(map[uint64]*LogSegment),
		expired:  make(map[uint64]*LogSegment),
	}
	if err := l.PrepareNewSegment(); err != nil {
		t.Fatalf("PrepareNewSegment: %v", err)
	}
	return l, stream, cache
}

func submit(t *testing.T, l *Log, e *Event) {
	t.Helper()
	if err := l.StartEntry(e); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	if err := l.SubmitEntry(e, nil); err != nil {
		t.Fatalf("SubmitEntry: %v", err)
	}
}

func TestBasicRoundTripSingleSegment(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1 << 20})

	submit(t, l, &Event{Kind: Other, Payload: []byte("A")})
	submit(t, l, &Event{Kind: Other, Payload: []byte("B")})

	if len(l.segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(l.segments))
	}
	seg := l.currentSegment()
	if seg.NumEvents != 3 { // subtree map + A + B
		t.Fatalf("expected 3 events in segment, got %d", seg.NumEvents)
	}
	if l.numEvents != 3 {
		t.Fatalf("expected 3 total events, got %d", l.numEvents)
	}
}

func TestSegmentRolloverByPeriod(t *testing.T) {
	l, stream, _ := newTestLog(t, Options{LayoutPeriod: 16})

	big := make([]byte, 20)
	submit(t, l, &Event{Kind: Other, Payload: big})

	if len(l.segments) != 2 {
		t.Fatalf("expected 2 segments after crossing the period boundary, got %d", len(l.segments))
	}

	second := l.segments[l.order[1]]
	if second.NumEvents != 1 {
		t.Fatalf("expected the new segment's first event to be its own subtree map, got %d events", second.NumEvents)
	}
	_, _, _, writePos := stream.Positions()
	if writePos == 0 {
		t.Fatalf("expected write_pos to have advanced")
	}
}

func TestSubtreeMapNeverTriggersRollover(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1})

	before := len(l.segments)
	submit(t, l, &Event{Kind: SubtreeMap, Payload: []byte("map")})
	if len(l.segments) != before {
		t.Fatalf("SubtreeMap must never trigger a new segment: had %d, now %d", before, len(l.segments))
	}
}

func TestImportFinishDuringResolveNeverTriggersRollover(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1})
	l.resolveState = StateResolve

	before := len(l.segments)
	submit(t, l, &Event{Kind: ImportFinish, Payload: []byte("x")})
	if len(l.segments) != before {
		t.Fatalf("ImportFinish during resolve must never trigger a new segment: had %d, now %d", before, len(l.segments))
	}
}

func TestSubmitEntryRejectsUnstartedEvent(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1 << 20})

	e := &Event{Kind: Other, Payload: []byte("x")}
	if err := l.SubmitEntry(e, nil); err != ErrNoPendingEntry {
		t.Fatalf("expected ErrNoPendingEntry, got %v", err)
	}
}

func TestStartEntryRejectsSecondPending(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1 << 20})

	a := &Event{Kind: Other, Payload: []byte("a")}
	b := &Event{Kind: Other, Payload: []byte("b")}
	if err := l.StartEntry(a); err != nil {
		t.Fatalf("StartEntry(a): %v", err)
	}
	if err := l.StartEntry(b); err != ErrPendingEntryExists {
		t.Fatalf("expected ErrPendingEntryExists, got %v", err)
	}
}

func TestCapRejectsFurtherSubmits(t *testing.T) {
	l, _, _ := newTestLog(t, Options{LayoutPeriod: 1 << 20})
	l.Cap()

	e := &Event{Kind: Other, Payload: []byte("x")}
	if err := l.StartEntry(e); err != nil {
		t.Fatalf("StartEntry: %v", err)
	}
	if err := l.SubmitEntry(e, nil); err != ErrCapped {
		t.Fatalf("expected ErrCapped, got %v", err)
	}
}
