package journal

import (
	"errors"

	"github.com/thorstenb/ceph/util"
)

// RespawnFunc re-execs the MDS process. ShutdownFunc begins an orderly
// shutdown. Both are injected so pkg/journal stays free of process-control
// concerns (spec.md §4.6).
type RespawnFunc func()
type ShutdownFunc func()

// SetWriteErrorPolicy installs the process-control callbacks consulted by
// onStreamWriteError. It only stores them — the handler itself is wired onto
// the active stream by installActiveStream, which may not have run yet (a
// caller is expected to set the policy before Open completes).
func (l *Log) SetWriteErrorPolicy(respawn RespawnFunc, shutdown ShutdownFunc) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.respawn = respawn
	l.shutdown = shutdown
}

// handleWriteError applies the same policy to a synchronous write failure
// observed directly by the core (e.g. a failed write_head during trim).
// Called with the coarse mutex held.
func (l *Log) handleWriteError(err error) {
	l.onStreamWriteError(err, errors.Is(err, ErrBlacklisted))
}

// onStreamWriteError is the single write-error policy decision point
// (spec.md §4.6): blacklisted/fenced respawns the process, anything else
// logs and initiates orderly shutdown. Called with the coarse mutex held.
func (l *Log) onStreamWriteError(errno error, fenced bool) {
	if fenced {
		util.Error("journal: write error, blacklisted: %v — respawning", errno)
		if l.respawn != nil {
			l.respawn()
		}
		return
	}

	util.Error("journal: write error: %v — shutting down", errno)
	if l.shutdown != nil {
		l.shutdown()
	}
}
