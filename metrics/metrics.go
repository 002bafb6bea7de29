package metrics

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency records per-operation store latency; populated by the
	// plugin/store/metrics decorator.
	StoreLatency *prometheus.HistogramVec

	// EntitlementWrites counts entitlement rows inserted by the propagator.
	EntitlementWrites prometheus.Counter
	// EntitlementDeletes counts entitlement rows removed by the propagator.
	EntitlementDeletes prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// AuthzChecksTotal counts HasPerm evaluations by outcome.
	AuthzChecksTotal *prometheus.CounterVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before opening the engine when store/cache metrics are
// wanted. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ontology_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	EntitlementWrites = f.NewCounter(prometheus.CounterOpts{
		Name: "ontology_entitlement_writes_total",
		Help: "Entitlement rows inserted by the propagator",
	})

	EntitlementDeletes = f.NewCounter(prometheus.CounterOpts{
		Name: "ontology_entitlement_deletes_total",
		Help: "Entitlement rows deleted by the propagator",
	})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "ontology_decision_cache_hits_total",
		Help: "Total decision cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "ontology_decision_cache_misses_total",
		Help: "Total decision cache misses",
	})

	AuthzChecksTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontology_authz_checks_total",
			Help: "HasPerm evaluations by outcome",
		},
		[]string{"outcome"},
	)
}
