package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UTXOScans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2wpkh",
		Name:      "utxo_scans_total",
		Help:      "UTXO set scans by result.",
	}, []string{"result"})

	UTXOsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "p2wpkh",
		Name:      "utxos_found_total",
		Help:      "Total unspent outputs returned by scans.",
	})

	FeeFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "p2wpkh",
		Name:      "fee_fallbacks_total",
		Help:      "Fee estimates that fell back to the default rate.",
	})

	FeeRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "p2wpkh",
		Name:      "fee_rate_sat_per_vbyte",
		Help:      "Most recent fee rate used for a spend.",
	})

	Signatures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2wpkh",
		Name:      "signatures_total",
		Help:      "Input signing attempts by result.",
	}, []string{"result"})

	Broadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "p2wpkh",
		Name:      "broadcasts_total",
		Help:      "Transaction broadcasts by result.",
	}, []string{"result"})

	RPCRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "p2wpkh",
		Name:      "rpc_request_seconds",
		Help:      "Bitcoin RPC latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(
		UTXOScans,
		UTXOsFound,
		FeeFallbacks,
		FeeRate,
		Signatures,
		Broadcasts,
		RPCRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
