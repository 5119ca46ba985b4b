package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(
		EventsAdded, EventsExpired, EventsTrimmed,
		SegmentsAdded, SegmentsExpired, SegmentsTrimmed,
		CurrentEvents, CurrentSegments, ExpiringEvents, ExpiredEvents,
		ExpirePos, WritePos, ReadPos,
		LatencyHist,
	)
}

func StartMetricsServer(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		fmt.Println("[METRICS] Prometheus exporter listening on", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("[METRICS] Failed to start metrics server: %v\n", err)
		}
	}()
}

// ObserveAppendLatency records the time between submit_entry and its
// durability callback firing.
func ObserveAppendLatency(elapsedSeconds float64) {
	LatencyHist.Observe(elapsedSeconds)
}

// SetPositions publishes the three monotone stream positions as gauges.
func SetPositions(expirePos, readPos, writePos uint64) {
	ExpirePos.Set(float64(expirePos))
	ReadPos.Set(float64(readPos))
	WritePos.Set(float64(writePos))
}
