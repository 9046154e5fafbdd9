package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DepositCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fundrouter",
			Name:      "deposit_created_total",
			Help:      "Total number of deposit intents created.",
		},
	)

	ProxyDeployTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fundrouter",
			Name:      "proxy_deploy_total",
			Help:      "Total number of batched proxy deployments.",
		},
		[]string{"result"}, // ok / failed
	)

	SweepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fundrouter",
			Name:      "sweep_total",
			Help:      "Total number of per-deposit sweep attempts.",
		},
		[]string{"result"}, // routed / empty / locked / failed
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fundrouter",
			Name:      "reconcile_batch_seconds",
			Help:      "Duration of one balance reconcile batch.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		DepositCreatedTotal,
		ProxyDeployTotal,
		SweepTotal,
		ReconcileDuration,
	)
}
