package config

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/thorstenb/ceph/util"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable for the journal service: the core Log's
// trim/layout parameters, the local object-store backend, and the ambient
// metrics/logging surface.
type Config struct {
	// Identity
	MDSID    int    `yaml:"mds_id" json:"mds_id"`
	PoolName string `yaml:"pool_name" json:"pool_name"`

	// Core journal tunables (spec.md §4.1-§4.2, §5)
	LayoutPeriod      int64 `yaml:"layout_period" json:"layout_period"`
	MaxEvents         int   `yaml:"max_events" json:"max_events"`
	MaxSegments       int   `yaml:"max_segments" json:"max_segments"`
	MaxExpiring       int   `yaml:"max_expiring" json:"max_expiring"`
	TrimBudgetMS      int   `yaml:"trim_budget_ms" json:"trim_budget_ms"`
	TrimIntervalMS    int   `yaml:"trim_interval_ms" json:"trim_interval_ms"`
	MinFormat         int   `yaml:"min_format" json:"min_format"`
	SkipCorruptEvents bool  `yaml:"skip_corrupt_events" json:"skip_corrupt_events"`
	DebugSubtreeTest  bool  `yaml:"debug_subtree_map_test" json:"debug_subtree_map_test"`

	// Local object-store backend (pkg/objectstream)
	LogDir             string `yaml:"log_dir" json:"log_dir"`
	SegmentFileBytes   int64  `yaml:"segment_file_bytes" json:"segment_file_bytes"`
	DiskFlushBatchSize int    `yaml:"disk_flush_batch_size" json:"disk_flush_batch_size"`
	LingerMS           int    `yaml:"linger_ms" json:"linger_ms"`
	ChannelBufferSize  int    `yaml:"channel_buffer_size" json:"channel_buffer_size"`
	DiskWriteTimeoutMS int    `yaml:"disk_write_timeout_ms" json:"disk_write_timeout_ms"`

	// Ambient stack
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable_exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter_port"`
}

// LoadConfig layers CLI flags over an optional YAML/JSON config file located
// at CONFIG_PATH (or -config), over compiled-in defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	mdsIDStr := flag.String("mds-id", "0", "MDS rank this journal belongs to")
	poolNameStr := flag.String("pool-name", "metadata", "Name of the metadata pool the journal pointer lives in")
	logDirStr := flag.String("log-dir", "mds-journal", "Local object-store backing directory")
	logLevelStr := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	exporterStr := flag.String("exporter", "true", "Enable Prometheus exporter")
	exporterPortStr := flag.String("exporter-port", "9100", "Exporter port")

	layoutPeriodStr := flag.String("layout-period", "1048576", "Segment layout period in bytes")
	maxEventsStr := flag.String("max-events", "131072", "Soft cap on live event count before trim stops")
	maxSegmentsStr := flag.String("max-segments", "64", "Soft cap on live segment count before trim stops")
	maxExpiringStr := flag.String("max-expiring", "8", "Maximum segments concurrently expiring")
	trimBudgetStr := flag.String("trim-budget-ms", "2000", "Wall-clock budget for a single trim() pass")

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	flag.Parse()

	applyDefaults(cfg, mdsIDStr, poolNameStr, logDirStr, logLevelStr, exporterStr,
		exporterPortStr, layoutPeriodStr, maxEventsStr, maxSegmentsStr, maxExpiringStr, trimBudgetStr)

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(*configPath, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyExplicitFlags(cfg, mdsIDStr, poolNameStr, logDirStr, logLevelStr, exporterStr,
		exporterPortStr, layoutPeriodStr, maxEventsStr, maxSegmentsStr, maxExpiringStr, trimBudgetStr)

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	return cfg, nil
}

func applyDefaults(cfg *Config, mdsIDStr, poolNameStr, logDirStr, logLevelStr, exporterStr,
	exporterPortStr, layoutPeriodStr, maxEventsStr, maxSegmentsStr, maxExpiringStr, trimBudgetStr *string) {

	cfg.MDSID = util.ParseInt(*mdsIDStr, 0)
	cfg.PoolName = *poolNameStr
	cfg.LogDir = *logDirStr
	cfg.EnableExporter = util.ParseBool(*exporterStr, true)
	cfg.ExporterPort = util.ParseInt(*exporterPortStr, 9100)
	cfg.LayoutPeriod = util.ParseInt64(*layoutPeriodStr, 1<<20)
	cfg.MaxEvents = util.ParseInt(*maxEventsStr, 131072)
	cfg.MaxSegments = util.ParseInt(*maxSegmentsStr, 64)
	cfg.MaxExpiring = util.ParseInt(*maxExpiringStr, 8)
	cfg.TrimBudgetMS = util.ParseInt(*trimBudgetStr, 2000)

	switch strings.ToLower(*logLevelStr) {
	case "debug":
		cfg.LogLevel = util.LogLevelDebug
	case "info":
		cfg.LogLevel = util.LogLevelInfo
	case "warn", "warning":
		cfg.LogLevel = util.LogLevelWarn
	case "error":
		cfg.LogLevel = util.LogLevelError
	default:
		cfg.LogLevel = util.LogLevelInfo
	}
}

// applyExplicitFlags re-applies a flag's value only if it differs from the
// documented default string — so a config-file value isn't silently
// clobbered by a flag the caller never actually passed.
func applyExplicitFlags(cfg *Config, mdsIDStr, poolNameStr, logDirStr, logLevelStr, exporterStr,
	exporterPortStr, layoutPeriodStr, maxEventsStr, maxSegmentsStr, maxExpiringStr, trimBudgetStr *string) {

	if *mdsIDStr != "0" {
		cfg.MDSID = util.ParseInt(*mdsIDStr, cfg.MDSID)
	}
	if *poolNameStr != "metadata" {
		cfg.PoolName = *poolNameStr
	}
	if *logDirStr != "mds-journal" {
		cfg.LogDir = *logDirStr
	}
	if *exporterStr != "true" {
		cfg.EnableExporter = util.ParseBool(*exporterStr, cfg.EnableExporter)
	}
	if *exporterPortStr != "9100" {
		cfg.ExporterPort = util.ParseInt(*exporterPortStr, cfg.ExporterPort)
	}
	if *layoutPeriodStr != "1048576" {
		cfg.LayoutPeriod = util.ParseInt64(*layoutPeriodStr, cfg.LayoutPeriod)
	}
	if *maxEventsStr != "131072" {
		cfg.MaxEvents = util.ParseInt(*maxEventsStr, cfg.MaxEvents)
	}
	if *maxSegmentsStr != "64" {
		cfg.MaxSegments = util.ParseInt(*maxSegmentsStr, cfg.MaxSegments)
	}
	if *maxExpiringStr != "8" {
		cfg.MaxExpiring = util.ParseInt(*maxExpiringStr, cfg.MaxExpiring)
	}
	if *trimBudgetStr != "2000" {
		cfg.TrimBudgetMS = util.ParseInt(*trimBudgetStr, cfg.TrimBudgetMS)
	}
	if *logLevelStr != "info" {
		switch strings.ToLower(*logLevelStr) {
		case "debug":
			cfg.LogLevel = util.LogLevelDebug
		case "info":
			cfg.LogLevel = util.LogLevelInfo
		case "warn", "warning":
			cfg.LogLevel = util.LogLevelWarn
		case "error":
			cfg.LogLevel = util.LogLevelError
		}
	}
}
