package config_test

import (
	"testing"

	"github.com/thorstenb/ceph/pkg/config"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Normalize()

	if cfg.PoolName != "metadata" {
		t.Errorf("PoolName default incorrect: %q", cfg.PoolName)
	}
	if cfg.LayoutPeriod != 1<<20 {
		t.Errorf("LayoutPeriod default incorrect: %d", cfg.LayoutPeriod)
	}
	if cfg.MaxEvents != 131072 {
		t.Errorf("MaxEvents default incorrect: %d", cfg.MaxEvents)
	}
	if cfg.MaxSegments != 64 {
		t.Errorf("MaxSegments default incorrect: %d", cfg.MaxSegments)
	}
	if cfg.TrimBudgetMS != 2000 {
		t.Errorf("TrimBudgetMS default incorrect: %d", cfg.TrimBudgetMS)
	}
	if cfg.SegmentFileBytes != 1<<20 {
		t.Errorf("SegmentFileBytes default incorrect: %d", cfg.SegmentFileBytes)
	}
}

func TestNormalizeClampsNegatives(t *testing.T) {
	cfg := &config.Config{MDSID: -5, LayoutPeriod: -1, MaxExpiring: -1}
	cfg.Normalize()

	if cfg.MDSID != 0 {
		t.Errorf("MDSID should clamp to 0, got %d", cfg.MDSID)
	}
	if cfg.LayoutPeriod != 1<<20 {
		t.Errorf("LayoutPeriod should default to 1MiB, got %d", cfg.LayoutPeriod)
	}
	if cfg.MaxExpiring != 8 {
		t.Errorf("MaxExpiring should default to 8, got %d", cfg.MaxExpiring)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MDS_JOURNAL_LOG_DIR", "/var/lib/mds-journal")

	cfg := &config.Config{LogDir: "local"}
	cfg.Normalize()

	if cfg.LogDir != "/var/lib/mds-journal" {
		t.Errorf("env override of LogDir failed: %q", cfg.LogDir)
	}
}
