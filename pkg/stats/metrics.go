package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "btcwallet"

var (
	plansCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Number of transaction plans computed, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	broadcastsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Number of transactions broadcasted, by kind.",
		},
		[]string{"kind"},
	)
	feesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_sats_total",
			Help:      "Sum of the fees paid by broadcasted transactions.",
		},
		[]string{"kind"},
	)
	scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of the gap-limit scan of a derivation branch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"scheme"},
	)
	discoveredAddressesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_addresses_total",
			Help:      "Number of addresses discovered by scans.",
		},
		[]string{"scheme"},
	)
)

func init() {
	prometheus.MustRegister(
		plansCounter, broadcastsCounter, feesCounter, scanDuration,
		discoveredAddressesCounter,
	)
}

// ObservePlan counts a plan of the given kind (payment, sweep, bumpfee).
// An empty outcome means the plan succeeded.
func ObservePlan(kind, outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	plansCounter.WithLabelValues(kind, outcome).Inc()
}

// ObserveBroadcast counts a broadcasted tx of the given kind and the fee it
// paid.
func ObserveBroadcast(kind string, fee int64) {
	broadcastsCounter.WithLabelValues(kind).Inc()
	feesCounter.WithLabelValues(kind).Add(float64(fee))
}

// ObserveScan records the duration of a branch scan and the number of
// addresses it discovered.
func ObserveScan(scheme string, start time.Time, discovered int) {
	scanDuration.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	discoveredAddressesCounter.WithLabelValues(scheme).Add(float64(discovered))
}
