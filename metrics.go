package authgate

import "sync/atomic"

// MetricID identifies one atomic counter.
type MetricID uint16

const (
	// MetricHydration counts one-time session loads from storage.
	MetricHydration MetricID = iota
	// MetricLoginSuccess counts sessions established by Login.
	MetricLoginSuccess
	// MetricLoginRejected counts ok:false envelopes from backend login flows.
	MetricLoginRejected
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricSessionExpired counts expiry-triggered teardowns.
	MetricSessionExpired
	// MetricSessionSelfHeal counts integrity-violation teardowns.
	MetricSessionSelfHeal
	// MetricStorageSaveFailure counts swallowed snapshot persistence failures.
	MetricStorageSaveFailure
	// MetricGateAllow counts chain evaluations that rendered the page.
	MetricGateAllow
	// MetricGateRedirect counts chain evaluations that redirected.
	MetricGateRedirect
	// MetricGatePending counts chain evaluations during hydration.
	MetricGatePending
	// MetricIntentConsumed counts resumed redirect intents.
	MetricIntentConsumed

	metricCount
)

var metricNames = [metricCount]string{
	MetricHydration:          "hydration",
	MetricLoginSuccess:       "login_success",
	MetricLoginRejected:      "login_rejected",
	MetricLogout:             "logout",
	MetricSessionExpired:     "session_expired",
	MetricSessionSelfHeal:    "session_self_heal",
	MetricStorageSaveFailure: "storage_save_failure",
	MetricGateAllow:          "gate_allow",
	MetricGateRedirect:       "gate_redirect",
	MetricGatePending:        "gate_pending",
	MetricIntentConsumed:     "intent_consumed",
}

// String returns the stable snake_case name of the metric.
func (id MetricID) String() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics is a fixed set of lock-free counters.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter. A nil or disabled Metrics is a no-op.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the counters. Always non-nil, even when disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
