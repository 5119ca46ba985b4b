package journal

import "context"

// StreamLayout describes the physical layout a Journaler is created with —
// the pool it lives in and the period segments are aligned to.
type StreamLayout struct {
	PoolName string
	Period   int64
}

// WriteErrorHandler is invoked asynchronously when the stream hits a write
// failure. errno mirrors the underlying object-store client's error value;
// Fenced distinguishes a blacklist/fence failure from any other write error
// (spec.md §4.6, §7).
type WriteErrorHandler func(errno error, fenced bool)

// Stream is the consumed contract for the underlying byte-stream
// abstraction ("Journaler"-equivalent, spec.md §6). The core never
// implements this itself — pkg/objectstream provides a concrete,
// locally-runnable implementation; production deployments back it with a
// real object-store client.
//
// Every method that can block on object-store I/O takes a context and is
// documented in spec.md §5 as a suspension point: callers release the
// coarse mutex before calling it and reacquire after it returns or its
// completion callback fires.
type Stream interface {
	// Create initializes a new journal in the object store with the given
	// layout and on-disk format version.
	Create(ctx context.Context, layout StreamLayout, formatVersion int) error

	// Recover asynchronously reads the header and bounds. It completes
	// successfully even if the journal is empty.
	Recover(ctx context.Context) error

	SetWriteable()
	SetReadonly()

	// SetReadPos, SetExpirePos, SetWritePos are only permitted in the
	// documented lifecycle states (before the stream is writeable, or
	// immediately after Recover).
	SetReadPos(pos uint64)
	SetExpirePos(pos uint64)
	SetWritePos(pos uint64)

	// Positions returns the four monotone positions (spec.md §3):
	// expire_pos <= read_pos <= safe_pos <= write_pos.
	Positions() (expirePos, readPos, safePos, writePos uint64)

	// AppendEntry consumes bytes and advances write_pos. Returns the start
	// offset the bytes were appended at.
	AppendEntry(payload []byte) (uint64, error)

	// WaitForFlush fires when safe_pos >= targetPos.
	WaitForFlush(ctx context.Context, targetPos uint64) error

	// Flush is a hint to flush pending bytes; it does not wait for safety.
	Flush()

	// IsReadable reports whether a new event is available or an error is
	// latched, without blocking.
	IsReadable() bool

	// WaitForReadable fires when IsReadable() would return true.
	WaitForReadable(ctx context.Context) error

	// TryReadEntry is synchronous and must only be called when IsReadable()
	// is true. It returns false (with a nil error) on readable-empty.
	TryReadEntry() (payload []byte, ok bool, err error)

	// WriteHead persists the journal's head object (positions and layout).
	WriteHead(ctx context.Context) error

	// RereadHead reloads the journal's head object.
	RereadHead(ctx context.Context) error

	// Erase deletes all backing objects. Erasing an already-gone stream is
	// not an error.
	Erase(ctx context.Context) error

	SetWriteErrorHandler(cb WriteErrorHandler)

	// GetStreamFormat returns the integer format version embedded in the
	// head.
	GetStreamFormat() int
}
