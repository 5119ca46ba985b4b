package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_events_added_total",
		Help: "Total number of events appended to the journal",
	})
	EventsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_events_expired_total",
		Help: "Total number of events whose segment finished expiring",
	})
	EventsTrimmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_events_trimmed_total",
		Help: "Total number of events removed from the live segment map by trim",
	})

	SegmentsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_segments_added_total",
		Help: "Total number of segments started",
	})
	SegmentsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_segments_expired_total",
		Help: "Total number of segments that finished expiring",
	})
	SegmentsTrimmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "journal_segments_trimmed_total",
		Help: "Total number of segments removed from the segment map",
	})

	CurrentEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_current_events",
		Help: "Live event count across all tracked segments",
	})
	CurrentSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_current_segments",
		Help: "Live segment count in the segment map",
	})
	ExpiringEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_expiring_events",
		Help: "Event count belonging to segments currently expiring",
	})
	ExpiredEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_expired_events",
		Help: "Event count belonging to segments fully expired but not yet trimmed",
	})

	ExpirePos = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_expire_pos",
		Help: "Greatest stream position the backing store may discard",
	})
	WritePos = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_write_pos",
		Help: "Bytes accepted for append",
	})
	ReadPos = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "journal_read_pos",
		Help: "Next byte to deliver on replay",
	})

	LatencyHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "journal_append_latency_seconds",
		Help:    "Latency from submit_entry to its durability callback firing",
		Buckets: prometheus.DefBuckets,
	})
)
