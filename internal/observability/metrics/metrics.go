package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for conversation turns,
// the analysis cache and the booking pipeline.
type ConversationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheEntries      prometheus.Gauge
	providerFallbacks prometheus.Counter
	extractTimeouts   prometheus.Counter
	bookingsTotal     *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"stage", "intent"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of conversation turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total analysis cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total analysis cache misses",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of live cache entries",
		}),
		providerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "llm",
			Name:      "provider_fallbacks_total",
			Help:      "Times the primary LLM provider failed and the fallback was used",
		}),
		extractTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "llm",
			Name:      "extract_timeouts_total",
			Help:      "Background provider extractions abandoned after the bounded wait",
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "orchestrator",
			Name:      "bookings_total",
			Help:      "Calendar bookings attempted, by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal, m.turnLatency,
		m.cacheHits, m.cacheMisses, m.cacheEntries,
		m.providerFallbacks, m.extractTimeouts, m.bookingsTotal,
	)
	return m
}

func (m *ConversationMetrics) ObserveTurn(stage, intent string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, intent).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *ConversationMetrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *ConversationMetrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *ConversationMetrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *ConversationMetrics) ProviderFallback() {
	if m == nil {
		return
	}
	m.providerFallbacks.Inc()
}

func (m *ConversationMetrics) ExtractTimeout() {
	if m == nil {
		return
	}
	m.extractTimeouts.Inc()
}

func (m *ConversationMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}
