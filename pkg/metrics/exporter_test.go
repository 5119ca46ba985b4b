package metrics_test

import (
	"testing"

	"github.com/thorstenb/ceph/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}

func getHistogramCount(h prometheus.Histogram) uint64 {
	m := &dto.Metric{}
	_ = h.Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestObserveAppendLatency(t *testing.T) {
	initial := getHistogramCount(metrics.LatencyHist)

	metrics.ObserveAppendLatency(0.5)
	metrics.ObserveAppendLatency(0.2)

	if got := getHistogramCount(metrics.LatencyHist); got != initial+2 {
		t.Fatalf("LatencyHist count expected %v, got %v", initial+2, got)
	}
}

func TestSetPositions(t *testing.T) {
	metrics.SetPositions(10, 20, 30)

	if got := getGaugeValue(metrics.ExpirePos); got != 10 {
		t.Errorf("ExpirePos = %v, want 10", got)
	}
	if got := getGaugeValue(metrics.ReadPos); got != 20 {
		t.Errorf("ReadPos = %v, want 20", got)
	}
	if got := getGaugeValue(metrics.WritePos); got != 30 {
		t.Errorf("WritePos = %v, want 30", got)
	}
}

func TestCounters(t *testing.T) {
	initial := getCounterValue(metrics.EventsAdded)
	metrics.EventsAdded.Inc()
	if got := getCounterValue(metrics.EventsAdded); got != initial+1 {
		t.Errorf("EventsAdded = %v, want %v", got, initial+1)
	}
}
