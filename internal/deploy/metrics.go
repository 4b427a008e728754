package deploy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"conflux/internal/adapter"
)

var (
	// batchStateTotal counts state-machine transitions by target state.
	batchStateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflux_deploy_batch_state_total",
			Help: "Deployment batch transitions by target state",
		},
		[]string{"state"},
	)

	// domainOutcomeTotal counts settled per-domain results.
	domainOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflux_deploy_domain_outcome_total",
			Help: "Settled per-domain deployment outcomes",
		},
		[]string{"domain", "status"},
	)

	// dispatchSeconds measures dispatch-to-settle latency per domain.
	dispatchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conflux_deploy_dispatch_seconds",
			Help:    "Time from dispatch to terminal answer per domain",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain", "status"},
	)
)

func init() {
	prometheus.MustRegister(batchStateTotal)
	prometheus.MustRegister(domainOutcomeTotal)
	prometheus.MustRegister(dispatchSeconds)
}

func observeState(s State) {
	batchStateTotal.WithLabelValues(string(s)).Inc()
}

func observeDispatch(domain string, status adapter.Status, d time.Duration) {
	dispatchSeconds.WithLabelValues(domain, string(status)).Observe(d.Seconds())
}

func recordBatchOutcomes(b *Batch) {
	for domain, o := range b.Outcomes {
		domainOutcomeTotal.WithLabelValues(domain, string(o.Status)).Inc()
	}
}
