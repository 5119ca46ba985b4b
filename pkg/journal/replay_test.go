package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newReplayTestLog(stream *fakeStream, cache *fakeCache, opts Options) *Log {
	return &Log{
		lock:     NewCoarseMutex(),
		stream:   stream,
		cache:    cache,
		opts:     opts,
		segments: make(map[uint64]*LogSegment),
		expiring: make(map[uint64]*LogSegment),
		expired:  make(map[uint64]*LogSegment),
	}
}

func appendEncoded(t *testing.T, stream *fakeStream, e *Event) {
	t.Helper()
	payload, err := (EventCodec{}).Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := stream.AppendEntry(payload); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestReplayAppliesSubtreeMapBoundaries(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map1")})
	appendEncoded(t, stream, &Event{Kind: Other, Payload: []byte("a")})
	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map2")})
	appendEncoded(t, stream, &Event{Kind: Other, Payload: []byte("b")})

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(l.segments) != 2 {
		t.Fatalf("expected 2 segments from 2 subtree maps, got %d", len(l.segments))
	}
	if len(cache.replayed) != 4 {
		t.Fatalf("expected 4 events replayed into cache, got %d", len(cache.replayed))
	}
	second := l.segments[l.order[1]]
	if second.NumEvents != 2 {
		t.Fatalf("expected the second segment to own its map event + 1 more, got %d", second.NumEvents)
	}
}

func TestReplaySkipsEventsBeforeFirstSegment(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	// An Other event written before any SubtreeMap ever showed up (e.g. a
	// truncated head) must be dropped rather than crash on a nil segment.
	appendEncoded(t, stream, &Event{Kind: Other, Payload: []byte("orphan")})
	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map")})

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(l.segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(l.segments))
	}
	if len(cache.replayed) != 1 {
		t.Fatalf("expected only the post-boundary event replayed, got %d", len(cache.replayed))
	}
}

func TestReplaySkipsCorruptEventWhenConfigured(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{SkipCorruptEvents: true})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map")})
	if _, err := stream.AppendEntry([]byte("not a valid encoded event")); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	appendEncoded(t, stream, &Event{Kind: Other, Payload: []byte("after")})

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; err != nil {
		t.Fatalf("replay should finish cleanly past a skipped corrupt event: %v", err)
	}
	if len(cache.replayed) != 2 {
		t.Fatalf("expected the map and the trailing event replayed, got %d", len(cache.replayed))
	}
}

func TestReplayAbortsOnCorruptEventByDefault(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{SkipCorruptEvents: false})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map")})
	if _, err := stream.AppendEntry([]byte("not a valid encoded event")); err != nil {
		t.Fatalf("append garbage: %v", err)
	}

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; !errors.Is(err, ErrCorruptEvent) {
		t.Fatalf("expected ErrCorruptEvent, got %v", err)
	}
}

func TestReplayTrimmedAheadReturnsTryAgain(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	stream.SetWritePos(10) // readPos(0) < writePos(10) so Replay won't finish early
	stream.readErr = fmt.Errorf("objectstream: gone: %w", ErrStreamNotFound)

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; !errors.Is(err, ErrTryAgain) {
		t.Fatalf("expected ErrTryAgain once a peer has trimmed ahead of us, got %v", err)
	}
}

func TestReplayRereadsHeadOnStreamInvalidPastExpirePos(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map")})
	// expire_pos stays at 0, which is <= the current read_pos(0), so
	// handleReplayError takes the reread-and-continue branch rather than
	// terminating.
	stream.readErr = fmt.Errorf("objectstream: stale: %w", ErrStreamInvalid)

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; err != nil {
		t.Fatalf("expected replay to recover via reread-head and finish cleanly, got %v", err)
	}
	if len(cache.replayed) != 1 {
		t.Fatalf("expected the map event replayed after recovering, got %d", len(cache.replayed))
	}
}

func TestReplayStreamInvalidBeforeExpirePosReturnsTryAgain(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map")})
	stream.SetExpirePos(1000) // expire_pos now ahead of read_pos(0)
	stream.readErr = fmt.Errorf("objectstream: stale: %w", ErrStreamInvalid)

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)

	if err := <-waiter; !errors.Is(err, ErrTryAgain) {
		t.Fatalf("expected ErrTryAgain when read_pos trails expire_pos, got %v", err)
	}
}

func TestStandbyTrimSegmentsClearsWithoutFlushing(t *testing.T) {
	stream := newFakeStream()
	cache := &fakeCache{}
	l := newReplayTestLog(stream, cache, Options{})

	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map1")})
	appendEncoded(t, stream, &Event{Kind: SubtreeMap, Payload: []byte("map2")})

	waiter := make(chan error, 1)
	l.Replay(context.Background(), waiter)
	if err := <-waiter; err != nil {
		t.Fatalf("replay: %v", err)
	}

	first := l.segments[l.order[0]]
	dirty := newFakeDirtyRefs(false)
	first.dirty = dirty

	stream.SetExpirePos(first.End)
	l.standbyTrimSegments()

	if _, ok := l.segments[first.Offset]; ok {
		t.Fatalf("expected the first segment to be dropped once expire_pos passed it")
	}
	if !dirty.Empty() {
		t.Fatalf("expected standby trim to clear the segment's dirty refs without flushing them")
	}
}
