package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/thorstenb/ceph/util"
)

// Open runs the recovery/reformat driver as a detached background thread
// (spec.md §4.4). waiter receives exactly one value: nil on success, or a
// terminal error (ErrUnrecoverable or a wrapped cause) on failure.
func (l *Log) Open(ctx context.Context, waiter chan<- error) {
	go l.runRecovery(ctx, waiter)
}

func (l *Log) runRecovery(ctx context.Context, waiter chan<- error) {
	l.lock.Lock()

	pointer, err := l.pointerStore.Load(l.poolName, l.opts.MDSID)
	if errors.Is(err, ErrPointerNotFound) {
		pointer = &JournalPointer{Front: DefaultIno(l.opts.MDSID), Back: 0}
		if err := l.pointerStore.Save(l.poolName, l.opts.MDSID, pointer); err != nil {
			l.lock.Unlock()
			waiter <- fmt.Errorf("journal: %w: save fresh pointer: %v", ErrUnrecoverable, err)
			return
		}
	} else if err != nil {
		l.lock.Unlock()
		waiter <- fmt.Errorf("journal: %w: load pointer: %v", ErrUnrecoverable, err)
		return
	}

	if pointer.Back != 0 {
		if err := l.cleanupStaleBack(ctx, pointer); err != nil {
			l.lock.Unlock()
			waiter <- fmt.Errorf("journal: %w: stale back cleanup: %v", ErrUnrecoverable, err)
			return
		}
	}

	front := l.newStream(pointer.Front)
	l.lock.Unlock()
	recErr := front.Recover(ctx)
	l.lock.Lock()
	if recErr != nil {
		l.lock.Unlock()
		waiter <- fmt.Errorf("journal: %w: recover front stream: %v", ErrUnrecoverable, recErr)
		return
	}

	if front.GetStreamFormat() >= l.opts.MinFormat {
		l.installActiveStream(front)
		l.lock.Unlock()
		waiter <- nil
		return
	}

	l.lock.Unlock()
	l.reformatJournal(ctx, pointer, front, waiter)
}

// cleanupStaleBack implements recovery step 2: a non-zero back means a
// prior reformat crashed before completing. Called with the coarse mutex
// held; it releases/reacquires around the blocking recover/erase calls.
func (l *Log) cleanupStaleBack(ctx context.Context, pointer *JournalPointer) error {
	back := l.newStream(pointer.Back)

	l.lock.Unlock()
	err := back.Recover(ctx)
	l.lock.Lock()
	if err != nil && !errors.Is(err, ErrStreamNotFound) {
		return fmt.Errorf("recover stale back stream: %w", err)
	}

	l.lock.Unlock()
	eraseErr := back.Erase(ctx)
	l.lock.Lock()
	if eraseErr != nil && !errors.Is(eraseErr, ErrStreamNotFound) {
		util.Warn("journal: erase stale back stream failed (clearing pointer anyway): %v", eraseErr)
	}

	pointer.Back = 0
	return l.pointerStore.Save(l.poolName, l.opts.MDSID, pointer)
}

// installActiveStream hands stream to the Log as its active journal and
// wires the write-error handler. Called with the coarse mutex held.
func (l *Log) installActiveStream(stream Stream) {
	l.stream = stream
	l.stream.SetWriteErrorHandler(func(errno error, fenced bool) {
		l.lock.Lock()
		defer l.lock.Unlock()
		l.onStreamWriteError(errno, fenced)
	})
}

// reformatJournal runs the online format-upgrade protocol (spec.md §4.4
// steps a-h). It is crash-safe at every numbered point: a restart that
// lands between (a) and (e) is cleaned up by cleanupStaleBack on the next
// Open; a restart between (e) and (g) sees Back pointing at the old
// journal (now logically "the old one") and erases it the same way.
func (l *Log) reformatJournal(ctx context.Context, pointer *JournalPointer, oldStream Stream, waiter chan<- error) {
	l.lock.Lock()

	// correlationID ties together the log lines of one reformat attempt,
	// since a crash can make runRecovery retry this from the top under a
	// fresh goroutine.
	correlationID := uuid.NewString()
	util.Info("journal: reformat[%s]: starting for mds %d", correlationID, l.opts.MDSID)

	backIno := BackupIno(l.opts.MDSID)
	if pointer.Front == BackupIno(l.opts.MDSID) {
		backIno = DefaultIno(l.opts.MDSID)
	}

	// (a) Declare intent before any data is written.
	pointer.Back = backIno
	if err := l.pointerStore.Save(l.poolName, l.opts.MDSID, pointer); err != nil {
		l.lock.Unlock()
		waiter <- fmt.Errorf("journal: %w: persist reformat intent: %v", ErrUnrecoverable, err)
		return
	}

	newStream := l.newStream(backIno)
	layout := StreamLayout{PoolName: l.poolName, Period: l.opts.LayoutPeriod}

	l.lock.Unlock()
	// (b) Create the new stream and write its head.
	if err := newStream.Create(ctx, layout, currentStreamFormat); err != nil {
		waiter <- fmt.Errorf("journal: %w: create reformat target: %v", ErrUnrecoverable, err)
		return
	}
	if err := newStream.WriteHead(ctx); err != nil {
		waiter <- fmt.Errorf("journal: %w: write reformat target head: %v", ErrUnrecoverable, err)
		return
	}

	// (c) Copy every decoded event across, yielding the mutex each
	// iteration so other MDS work can progress.
	if err := l.copyStreamEvents(ctx, oldStream, newStream); err != nil {
		waiter <- fmt.Errorf("journal: %w: copy events: %v", ErrUnrecoverable, err)
		return
	}

	// (d) Flush and wait for safety.
	newStream.Flush()
	_, _, _, writePos := newStream.Positions()
	if err := newStream.WaitForFlush(ctx, writePos); err != nil {
		waiter <- fmt.Errorf("journal: %w: wait for reformat flush: %v", ErrUnrecoverable, err)
		return
	}

	l.lock.Lock()
	// (e) Atomically commit the swap.
	pointer.Front, pointer.Back = backIno, pointer.Front
	if err := l.pointerStore.Save(l.poolName, l.opts.MDSID, pointer); err != nil {
		l.lock.Unlock()
		waiter <- fmt.Errorf("journal: %w: persist reformat commit: %v", ErrUnrecoverable, err)
		return
	}
	l.lock.Unlock()

	// (f) Erase the old stream, now referenced by Back.
	if err := oldStream.Erase(ctx); err != nil && !errors.Is(err, ErrStreamNotFound) {
		util.Warn("journal: erase old stream after reformat failed: %v", err)
	}

	l.lock.Lock()
	// (g) Clear Back.
	pointer.Back = 0
	if err := l.pointerStore.Save(l.poolName, l.opts.MDSID, pointer); err != nil {
		l.lock.Unlock()
		waiter <- fmt.Errorf("journal: %w: persist reformat cleanup: %v", ErrUnrecoverable, err)
		return
	}

	// (h) Install the new stream.
	l.installActiveStream(newStream)
	l.lock.Unlock()
	util.Info("journal: reformat[%s]: complete, front=%d", correlationID, backIno)
	waiter <- nil
}

// copyStreamEvents reads old end-to-end and appends each decoded event's
// re-encoded bytes to fresh. It releases and reacquires the coarse mutex
// around each iteration (spec.md §4.4 step c, §9).
func (l *Log) copyStreamEvents(ctx context.Context, old, fresh Stream) error {
	for {
		l.lock.Lock()
		_, readPos, _, writePos := old.Positions()
		if readPos == writePos {
			l.lock.Unlock()
			return nil
		}

		if !old.IsReadable() {
			l.lock.Unlock()
			if err := old.WaitForReadable(ctx); err != nil {
				return err
			}
			continue
		}

		payload, ok, err := old.TryReadEntry()
		l.lock.Unlock()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		event, err := l.codec.Decode(payload)
		if err != nil {
			if l.opts.SkipCorruptEvents {
				continue
			}
			return err
		}

		reencoded, err := l.codec.Encode(event)
		if err != nil {
			return err
		}
		if _, err := fresh.AppendEntry(reencoded); err != nil {
			return err
		}
	}
}

// currentStreamFormat is the on-disk format version this build writes.
// Recovery upgrades any stream below opts.MinFormat to this value.
const currentStreamFormat = 1
