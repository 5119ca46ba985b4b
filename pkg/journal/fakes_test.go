package journal

import (
	"context"
	"sync"
)

// fakeStream is an in-memory journal.Stream good enough to drive the
// append, trim, and replay paths under test without touching disk.
type fakeStream struct {
	mu sync.Mutex

	expirePos uint64
	readPos   uint64
	safePos   uint64
	writePos  uint64
	readonly  bool
	format    int
	records   [][]byte

	errHandler WriteErrorHandler

	// Test-only error injection: readErr, if set, is returned once (then
	// cleared) by the next TryReadEntry call; waitErr is returned once by
	// the next WaitForReadable call; forceUnreadable makes IsReadable
	// report false regardless of position, so Replay's WaitForReadable
	// path runs even though the fake has no real blocking wait.
	readErr         error
	waitErr         error
	forceUnreadable bool
	erased          bool
}

func newFakeStream() *fakeStream { return &fakeStream{format: 1} }

func (f *fakeStream) Create(ctx context.Context, layout StreamLayout, formatVersion int) error {
	f.format = formatVersion
	return nil
}
func (f *fakeStream) Recover(ctx context.Context) error { return nil }
func (f *fakeStream) SetWriteable()                     { f.readonly = false }
func (f *fakeStream) SetReadonly()                       { f.readonly = true }
func (f *fakeStream) SetReadPos(pos uint64)              { f.readPos = pos }
func (f *fakeStream) SetExpirePos(pos uint64)            { f.expirePos = pos }
func (f *fakeStream) SetWritePos(pos uint64)             { f.writePos = pos; f.safePos = pos }

func (f *fakeStream) Positions() (expirePos, readPos, safePos, writePos uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expirePos, f.readPos, f.safePos, f.writePos
}

func (f *fakeStream) AppendEntry(payload []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := f.writePos
	f.records = append(f.records, payload)
	f.writePos = start + uint64(len(payload))
	f.safePos = f.writePos
	return start, nil
}

func (f *fakeStream) WaitForFlush(ctx context.Context, targetPos uint64) error { return nil }
func (f *fakeStream) Flush()                                                  {}
func (f *fakeStream) IsReadable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceUnreadable {
		return false
	}
	return f.readPos < f.safePos
}
func (f *fakeStream) WaitForReadable(ctx context.Context) error {
	f.mu.Lock()
	err := f.waitErr
	f.waitErr = nil
	f.forceUnreadable = false
	f.mu.Unlock()
	return err
}

func (f *fakeStream) TryReadEntry() ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return nil, false, err
	}
	if f.readPos >= f.safePos {
		return nil, false, nil
	}
	// readPos is a byte offset into the concatenation of encoded records;
	// recompute which record that is.
	var off uint64
	for _, rec := range f.records {
		end := off + uint64(len(rec))
		if f.readPos == off {
			f.readPos = end
			return rec, true, nil
		}
		off = end
	}
	return nil, false, nil
}

func (f *fakeStream) WriteHead(ctx context.Context) error  { return nil }
func (f *fakeStream) RereadHead(ctx context.Context) error { return nil }
func (f *fakeStream) Erase(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.erased {
		return ErrStreamNotFound
	}
	f.erased = true
	return nil
}
func (f *fakeStream) SetWriteErrorHandler(cb WriteErrorHandler) { f.errHandler = cb }
func (f *fakeStream) GetStreamFormat() int                      { return f.format }

func (f *fakeStream) wasErased() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.erased
}

// fakeCache is a minimal Cache for append/replay tests.
type fakeCache struct {
	replayed []*Event
}

func (c *fakeCache) CreateSubtreeMap() (*Event, error) { return &Event{Kind: SubtreeMap}, nil }
func (c *fakeCache) AdvanceStray()                      {}
func (c *fakeCache) Trim(n int)                         {}
func (c *fakeCache) Replay(e *Event) error {
	c.replayed = append(c.replayed, e)
	return nil
}

// fakeDirtyRefs is a DirtyRefs whose Gather channel is already closed when
// the set is empty; otherwise it stays open until the test calls release().
type fakeDirtyRefs struct {
	mu     sync.Mutex
	empty  bool
	gather chan struct{}
}

func newFakeDirtyRefs(empty bool) *fakeDirtyRefs {
	return &fakeDirtyRefs{empty: empty, gather: make(chan struct{})}
}

func (d *fakeDirtyRefs) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.empty
}

func (d *fakeDirtyRefs) Gather(prio int) <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.empty {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.gather
}

func (d *fakeDirtyRefs) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.empty = true
}

// release unblocks a pending Gather and marks the set empty, simulating the
// cache finishing its flushes.
func (d *fakeDirtyRefs) release() {
	d.mu.Lock()
	d.empty = true
	ch := d.gather
	d.mu.Unlock()
	close(ch)
}
