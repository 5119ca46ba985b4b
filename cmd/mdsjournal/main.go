package main

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/thorstenb/ceph/pkg/config"
	"github.com/thorstenb/ceph/pkg/journal"
	"github.com/thorstenb/ceph/pkg/metrics"
	"github.com/thorstenb/ceph/pkg/objectstream"
	"github.com/thorstenb/ceph/util"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		util.Fatal("config: %v", err)
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}

	lock := journal.NewCoarseMutex()
	cache := &noopCache{}

	streamOpts := objectstream.Options{
		BaseDir:            cfg.LogDir,
		ChannelBufferSize:  cfg.ChannelBufferSize,
		DiskFlushBatchSize: cfg.DiskFlushBatchSize,
		LingerMS:           cfg.LingerMS,
		DiskWriteTimeoutMS: cfg.DiskWriteTimeoutMS,
		SegmentFileBytes:   cfg.SegmentFileBytes,
	}
	pointerStore := objectstream.PointerStore{BaseDir: cfg.LogDir}

	log := journal.NewLog(lock, objectstream.Factory(streamOpts), pointerStore, cfg.PoolName, cache, journal.Options{
		MDSID:             cfg.MDSID,
		LayoutPeriod:      cfg.LayoutPeriod,
		MaxEvents:         cfg.MaxEvents,
		MaxSegments:       cfg.MaxSegments,
		MaxExpiring:       cfg.MaxExpiring,
		TrimBudget:        time.Duration(cfg.TrimBudgetMS) * time.Millisecond,
		MinFormat:         cfg.MinFormat,
		SkipCorruptEvents: cfg.SkipCorruptEvents,
		DebugSubtreeTest:  cfg.DebugSubtreeTest,
	})

	log.SetWriteErrorPolicy(respawn, shutdown)

	ctx := context.Background()
	opened := make(chan error, 1)
	log.Open(ctx, opened)

	if err := <-opened; err != nil {
		util.Fatal("journal open failed: %v", err)
	}
	util.Info("journal open for mds %d in pool %q", cfg.MDSID, cfg.PoolName)

	replayed := make(chan error, 1)
	go log.Replay(ctx, replayed)
	if err := <-replayed; err != nil {
		util.Fatal("journal replay failed: %v", err)
	}
	util.Info("journal replay complete")

	if !log.HasCurrentSegment() {
		if err := log.PrepareNewSegment(); err != nil {
			util.Fatal("journal: failed to open initial segment: %v", err)
		}
	}

	trimTicker := time.NewTicker(time.Duration(cfg.TrimIntervalMS) * time.Millisecond)
	defer trimTicker.Stop()
	for range trimTicker.C {
		log.Trim(-1)
	}
}

// respawn starts a fresh copy of the current binary with the same arguments
// and then exits, the policy response to a blacklisted/fenced write error
// (spec.md §4.6).
func respawn() {
	util.Error("respawning after blacklisted write error")
	self, err := os.Executable()
	if err != nil {
		os.Exit(1)
	}
	_ = exec.Command(self, os.Args[1:]...).Start()
	os.Exit(1)
}

// shutdown performs an orderly exit — the policy response to any other
// write error (spec.md §4.6).
func shutdown() {
	util.Error("shutting down after write error")
	os.Exit(1)
}

// noopCache is a placeholder metadata cache for the standalone journal
// service binary; a real MDS process supplies its own journal.Cache
// implementation wired to its in-memory metadata tree.
type noopCache struct{}

func (noopCache) CreateSubtreeMap() (*journal.Event, error) {
	return &journal.Event{Kind: journal.SubtreeMap}, nil
}
func (noopCache) AdvanceStray()    {}
func (noopCache) Trim(n int)       {}
func (noopCache) Replay(e *journal.Event) error { return nil }
