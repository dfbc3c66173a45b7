package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics covers the vote path: actor fan-out, live broadcast and caches.
type EngineMetrics struct {
	fanoutFailures    *prometheus.CounterVec
	broadcasts        prometheus.Counter
	droppedSubs       prometheus.Counter
	activeSubs        prometheus.Gauge
	hydrations        *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	achievementGrants *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

func ResetEngineMetricsForTest() {
	engineMetricsOnce = sync.Once{}
	engineMetrics = nil
}

func newEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &EngineMetrics{
		fanoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "worldpulse_vote_fanout_failures_total",
			Help:        "Votes recorded in the ledger whose actor update failed; reconcile to repair.",
			ConstLabels: labels,
		}, []string{"target"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "worldpulse_tally_broadcasts_total",
			Help:        "Tally messages pushed to live subscribers.",
			ConstLabels: labels,
		}),
		droppedSubs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "worldpulse_tally_subscribers_dropped_total",
			Help:        "Live subscribers removed after a failed push.",
			ConstLabels: labels,
		}),
		activeSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "worldpulse_tally_subscribers",
			Help:        "Currently registered live subscribers.",
			ConstLabels: labels,
		}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "worldpulse_actor_hydrations_total",
			Help:        "Actor cold-start loads from the state store.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "worldpulse_cache_lookups_total",
			Help:        "Read-through cache lookups by cache name and hit or miss.",
			ConstLabels: labels,
		}, []string{"cache", "result"}),
		achievementGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "worldpulse_achievement_grants_total",
			Help:        "Achievements granted by id.",
			ConstLabels: labels,
		}, []string{"achievement"}),
	}

	m.fanoutFailures = registerCollector(registerer, m.fanoutFailures).(*prometheus.CounterVec)
	m.broadcasts = registerCollector(registerer, m.broadcasts).(prometheus.Counter)
	m.droppedSubs = registerCollector(registerer, m.droppedSubs).(prometheus.Counter)
	m.activeSubs = registerCollector(registerer, m.activeSubs).(prometheus.Gauge)
	m.hydrations = registerCollector(registerer, m.hydrations).(*prometheus.CounterVec)
	m.cacheLookups = registerCollector(registerer, m.cacheLookups).(*prometheus.CounterVec)
	m.achievementGrants = registerCollector(registerer, m.achievementGrants).(*prometheus.CounterVec)
	return m
}

func (m *EngineMetrics) IncFanoutFailure(target string) {
	if m == nil {
		return
	}
	m.fanoutFailures.WithLabelValues(target).Inc()
}

func (m *EngineMetrics) AddBroadcasts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.broadcasts.Add(float64(n))
}

func (m *EngineMetrics) IncDroppedSubscriber() {
	if m == nil {
		return
	}
	m.droppedSubs.Inc()
}

func (m *EngineMetrics) AddActiveSubscribers(delta int) {
	if m == nil {
		return
	}
	m.activeSubs.Add(float64(delta))
}

func (m *EngineMetrics) IncHydration(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.hydrations.WithLabelValues(kind, result).Inc()
}

func (m *EngineMetrics) IncCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *EngineMetrics) IncAchievementGrant(id string) {
	if m == nil {
		return
	}
	m.achievementGrants.WithLabelValues(id).Inc()
}
