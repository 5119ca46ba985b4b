package journal

import (
	"context"
	"errors"

	"github.com/thorstenb/ceph/util"
)

// Replay drives the dedicated replay thread (spec.md §4.3): it reads the
// stream event by event, reconstructs segment boundaries, and applies each
// event's side effects to the cache. waiter, if non-nil, is closed-by-send
// exactly once when the thread exits, carrying the terminal error (nil on a
// clean finish).
func (l *Log) Replay(ctx context.Context, waiter chan<- error) {
	l.lock.Lock()

	for {
		_, readPos, _, writePos := l.stream.Positions()

		if !l.stream.IsReadable() && readPos < writePos {
			l.lock.Unlock()
			err := l.stream.WaitForReadable(ctx)
			l.lock.Lock()
			if err != nil {
				if done := l.handleReplayError(ctx, err, waiter); done {
					l.lock.Unlock()
					return
				}
				continue
			}
		}

		_, readPos, _, writePos = l.stream.Positions()
		if readPos == writePos {
			l.lock.Unlock()
			l.finishReplay(nil, waiter)
			return
		}

		entryStart := readPos
		payload, ok, err := l.stream.TryReadEntry()
		if err != nil {
			if done := l.handleReplayError(ctx, err, waiter); done {
				l.lock.Unlock()
				return
			}
			continue
		}
		if !ok {
			l.lock.Unlock()
			l.finishReplay(nil, waiter)
			return
		}

		event, err := l.codec.Decode(payload)
		if err != nil {
			if l.opts.SkipCorruptEvents {
				util.Warn("journal: skipping corrupt event during replay")
				continue
			}
			l.lock.Unlock()
			l.finishReplay(ErrCorruptEvent, waiter)
			return
		}

		_, readPosAfter, _, _ := l.stream.Positions()
		l.applyReplayedEvent(event, entryStart, readPosAfter)

		// Per-iteration yield so beacon/heartbeat work can progress
		// (spec.md §4.3 step 8, §5).
		l.lock.Unlock()
		l.lock.Lock()
	}
}

// applyReplayedEvent implements steps 5-7: open a new segment on a
// SubtreeMap/ResetJournal boundary, skip events seen before any segment
// exists, and otherwise attribute the event to the current segment and run
// its side effects against the cache. start is this entry's read_pos
// before it was consumed, the segment's identity if it opens one; end is
// read_pos after.
func (l *Log) applyReplayedEvent(e *Event, start, end uint64) {
	e.Start = start
	e.End = end

	if e.Kind == SubtreeMap || e.Kind == ResetJournal {
		seg := newLogSegment(e.Start, nil)
		l.segments[seg.Offset] = seg
		l.order = append(l.order, seg.Offset)
	}

	current := l.currentSegment()
	if current == nil {
		return
	}

	e.segment = current
	current.NumEvents++
	current.End = end
	l.numEvents++

	if err := l.cache.Replay(e); err != nil {
		util.Warn("journal: replay side effect failed: %v", err)
	}
}

// handleReplayError classifies a stream error per spec.md §4.3 step 2 and
// §7. It returns true if the replay thread should terminate.
func (l *Log) handleReplayError(ctx context.Context, err error, waiter chan<- error) bool {
	expirePos, readPos, _, _ := l.stream.Positions()

	switch {
	case errors.Is(err, ErrStreamNotFound):
		l.finishReplayLocked(ErrTryAgain, waiter)
		return true

	case errors.Is(err, ErrStreamInvalid):
		if readPos < expirePos {
			l.finishReplayLocked(ErrTryAgain, waiter)
			return true
		}
		l.lock.Unlock()
		rerr := l.stream.RereadHead(ctx)
		l.lock.Lock()
		if rerr != nil {
			l.finishReplayLocked(rerr, waiter)
			return true
		}
		l.standbyTrimSegments()
		return false

	default:
		l.finishReplayLocked(err, waiter)
		return true
	}
}

func (l *Log) finishReplay(err error, waiter chan<- error) {
	l.lock.Lock()
	l.finishReplayLocked(err, waiter)
	l.lock.Unlock()
}

func (l *Log) finishReplayLocked(err error, waiter chan<- error) {
	if waiter != nil {
		waiter <- err
	}
}

// standbyTrimSegments removes in-memory segments a leader has already
// advanced expire_pos past, clearing their dirty back-references without
// flushing (the leader owns that flush) and asking the cache to run a trim
// pass if anything was removed (spec.md §4.5). Called with the coarse mutex
// held.
func (l *Log) standbyTrimSegments() {
	expirePos, _, _, _ := l.stream.Positions()

	removedAny := false
	for len(l.order) > 0 {
		offset := l.order[0]
		seg := l.segments[offset]
		if seg.End > expirePos {
			break
		}
		if seg.dirty != nil {
			seg.dirty.Clear()
		}
		l.numEvents -= seg.NumEvents
		delete(l.segments, offset)
		l.order = l.order[1:]
		removedAny = true
	}

	if removedAny {
		l.cache.Trim(-1)
	}
}
