package authgate

import (
	"sync"
	"testing"
)

func TestMetricNames(t *testing.T) {
	for id := MetricID(0); id < metricCount; id++ {
		if id.String() == "" || id.String() == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
	}
	if metricCount.String() != "unknown" {
		t.Fatal("out-of-range ids must read unknown")
	}
}

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricGateRedirect)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 login successes, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricGateRedirect] != 1 {
		t.Fatalf("expected 1 redirect, got %d", snap.Counters[MetricGateRedirect])
	}
	if snap.Counters[MetricLogout] != 0 {
		t.Fatal("untouched counters stay zero")
	}
}

func TestMetricsDisabledAndNil(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	if got := m.Snapshot().Counters[MetricLoginSuccess]; got != 0 {
		t.Fatalf("disabled metrics must not count, got %d", got)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	if snap := nilMetrics.Snapshot(); snap.Counters == nil {
		t.Fatal("nil metrics still snapshots an empty map")
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := newMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricGateAllow)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricGateAllow]; got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}
