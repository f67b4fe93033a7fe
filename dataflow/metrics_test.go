package dataflow

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestMetricsUpdateGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.UpdateQueueDepth(7)
	pm.UpdateInflightNodes(3)

	if v := gaugeValue(t, pm.queueDepth); v != 7 {
		t.Errorf("queueDepth = %v, want 7", v)
	}
	if v := gaugeValue(t, pm.inflightNodes); v != 3 {
		t.Errorf("inflightNodes = %v, want 3", v)
	}

	pm.Reset()
	if v := gaugeValue(t, pm.queueDepth); v != 0 {
		t.Errorf("queueDepth after Reset = %v, want 0", v)
	}
}

func TestMetricsDisableSuppressesRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.Disable()
	pm.UpdateQueueDepth(99)
	if v := gaugeValue(t, pm.queueDepth); v != 0 {
		t.Errorf("queueDepth after Disable = %v, want 0 (update suppressed)", v)
	}

	pm.Enable()
	pm.UpdateQueueDepth(99)
	if v := gaugeValue(t, pm.queueDepth); v != 99 {
		t.Errorf("queueDepth after Enable = %v, want 99", v)
	}
}

func TestMetricsCountersIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.IncrementCircularRecruitment("run-1", "node-a")
	pm.IncrementBackpressure("run-1", "max_inflight")

	count, err := pm.circularRecruitment.GetMetricWithLabelValues("run-1", "node-a")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	var m dto.Metric
	if err := count.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("circularRecruitment = %v, want 1", m.GetCounter().GetValue())
	}
}
