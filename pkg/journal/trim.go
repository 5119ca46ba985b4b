package journal

import (
	"context"
	"time"

	"github.com/thorstenb/ceph/pkg/metrics"
)

// Priority levels for expiry flush operations, interpolated linearly across
// expiring/max_expiring (spec.md §4.2).
const (
	PriorityLow  = 0
	PriorityHigh = 100
)

// Trim attempts, under a wall-clock budget, to bring the journal's live
// event and segment counts at or below the configured maxima. It makes
// progress but is not required to finish in one call — the caller is
// expected to call it again on a timer (spec.md §4.2).
func (l *Log) Trim(maxEventsOverride int) {
	deadline := time.Now().Add(l.opts.TrimBudget)

	maxEvents := l.opts.MaxEvents
	if maxEventsOverride >= 0 {
		maxEvents = maxEventsOverride
	}

	for time.Now().Before(deadline) {
		l.lock.Lock()

		liveEvents := l.numEvents - l.expiringEvents - l.expiredEvents
		liveSegments := len(l.segments) - len(l.expiring) - len(l.expired)
		if liveEvents <= maxEvents && liveSegments <= l.opts.MaxSegments {
			l.lock.Unlock()
			return
		}

		seg := l.oldestTrimCandidate()
		if seg == nil {
			l.lock.Unlock()
			return
		}

		_, _, safePos, _ := l.stream.Positions()
		if seg.End > safePos {
			l.lock.Unlock()
			return
		}
		if len(l.expiring) >= l.opts.MaxExpiring {
			l.lock.Unlock()
			return
		}

		prio := PriorityLow
		if l.opts.MaxExpiring > 0 {
			frac := float64(len(l.expiring)) / float64(l.opts.MaxExpiring)
			prio = PriorityLow + int(frac*float64(PriorityHigh-PriorityLow))
		}

		l.tryExpire(seg, prio)
		needsWriteHead := l.trimExpiredSegments()
		l.lock.Unlock()

		// WriteHead is a blocking object-store call; it happens outside
		// the coarse mutex per the lock-drop-around-blocking-I/O rule
		// (spec.md §5).
		if needsWriteHead {
			if err := l.stream.WriteHead(context.Background()); err != nil {
				l.lock.Lock()
				l.handleWriteError(err)
				l.lock.Unlock()
			}
		}
	}
}

// oldestTrimCandidate returns the oldest segment not already expiring or
// expired, or nil if none remains.
func (l *Log) oldestTrimCandidate() *LogSegment {
	for _, offset := range l.order {
		if _, ok := l.expiring[offset]; ok {
			continue
		}
		if _, ok := l.expired[offset]; ok {
			continue
		}
		return l.segments[offset]
	}
	return nil
}

// tryExpire gathers every flush the segment's dirty back-references still
// need. An empty gather marks the segment expired immediately; otherwise it
// is parked in expiring until the gather completes, at which point a fresh
// attempt is made (spec.md §4.2). Called with the coarse mutex held; the
// continuation goroutine reacquires it before touching Log state.
func (l *Log) tryExpire(s *LogSegment, prio int) {
	if s.empty() {
		l.markExpired(s)
		return
	}

	if _, already := l.expiring[s.Offset]; !already {
		l.expiring[s.Offset] = s
		l.expiringEvents += s.NumEvents
		metrics.ExpiringEvents.Set(float64(l.expiringEvents))
	}

	gather := s.dirty.Gather(prio)
	go func() {
		<-gather
		l.lock.Lock()
		defer l.lock.Unlock()
		delete(l.expiring, s.Offset)
		l.expiringEvents -= s.NumEvents
		metrics.ExpiringEvents.Set(float64(l.expiringEvents))
		l.tryExpire(s, prio)
	}()
}

// markExpired implements _expired: the current segment can never be marked
// expired while the Log accepts writes, because it must stay available for
// new appends.
func (l *Log) markExpired(s *LogSegment) {
	if cur := l.currentSegment(); cur == s && !l.capped {
		return
	}
	if _, ok := l.expired[s.Offset]; ok {
		return
	}
	l.expired[s.Offset] = s
	l.expiredEvents += s.NumEvents

	metrics.SegmentsExpired.Inc()
	metrics.EventsExpired.Add(float64(s.NumEvents))
	metrics.ExpiredEvents.Set(float64(l.expiredEvents))
}

// trimExpiredSegments implements _trim_expired_segments: it removes expired
// segments from the oldest end contiguously and, if any were removed,
// advances expire_pos. It reports whether the stream's persisted head
// should be rewritten so the advance reaches durable storage — the actual
// write happens in the caller, outside the coarse mutex.
func (l *Log) trimExpiredSegments() bool {
	removed := false
	var advancedTo uint64

	for len(l.order) > 0 {
		offset := l.order[0]
		seg, ok := l.expired[offset]
		if !ok {
			break
		}

		l.numEvents -= seg.NumEvents
		l.expiredEvents -= seg.NumEvents

		delete(l.expired, offset)
		delete(l.segments, offset)
		l.order = l.order[1:]

		if offset > advancedTo {
			advancedTo = offset
		}
		removed = true

		metrics.EventsTrimmed.Add(float64(seg.NumEvents))
		metrics.SegmentsTrimmed.Inc()
	}

	if !removed {
		return false
	}

	expirePos, readPos, _, writePos := l.stream.Positions()
	if advancedTo > expirePos {
		l.stream.SetExpirePos(advancedTo)
		expirePos = advancedTo
	}

	metrics.CurrentEvents.Set(float64(l.numEvents))
	metrics.CurrentSegments.Set(float64(len(l.segments)))
	metrics.ExpiredEvents.Set(float64(l.expiredEvents))
	metrics.SetPositions(expirePos, readPos, writePos)

	return true
}
