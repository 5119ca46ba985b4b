package config

import (
	"os"
	"strings"

	"github.com/thorstenb/ceph/util"
)

// Normalize clamps invalid or unset fields to sane defaults and applies a
// final layer of MDS_JOURNAL_* environment overrides, the way the reference
// config package layers env vars over file and flag values.
func (cfg *Config) Normalize() {
	if cfg.MDSID < 0 {
		cfg.MDSID = 0
	}
	if strings.TrimSpace(cfg.PoolName) == "" {
		cfg.PoolName = "metadata"
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		cfg.LogDir = "mds-journal"
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}

	if cfg.LayoutPeriod <= 0 {
		util.Warn("Invalid LayoutPeriod (%d), defaulting to 1MiB", cfg.LayoutPeriod)
		cfg.LayoutPeriod = 1 << 20
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 131072
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 64
	}
	if cfg.MaxExpiring <= 0 {
		cfg.MaxExpiring = 8
	}
	if cfg.TrimBudgetMS <= 0 {
		cfg.TrimBudgetMS = 2000
	}
	if cfg.TrimIntervalMS <= 0 {
		cfg.TrimIntervalMS = 5000
	}
	if cfg.MinFormat <= 0 {
		cfg.MinFormat = 1
	}

	if cfg.SegmentFileBytes < 1024 {
		cfg.SegmentFileBytes = 1 << 20
	}
	if cfg.DiskFlushBatchSize <= 0 {
		cfg.DiskFlushBatchSize = 50
	}
	if cfg.LingerMS < 0 {
		cfg.LingerMS = 0
	}
	if cfg.ChannelBufferSize <= 0 {
		cfg.ChannelBufferSize = 1024
	}
	if cfg.DiskWriteTimeoutMS <= 0 {
		cfg.DiskWriteTimeoutMS = 10
	}

	overrideEnvInt(&cfg.MDSID, "MDS_JOURNAL_MDS_ID")
	overrideEnvString(&cfg.LogDir, "MDS_JOURNAL_LOG_DIR")
	overrideEnvInt64(&cfg.LayoutPeriod, "MDS_JOURNAL_LAYOUT_PERIOD")
	overrideEnvBool(&cfg.SkipCorruptEvents, "MDS_JOURNAL_SKIP_CORRUPT_EVENTS")
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvInt64(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt64(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
