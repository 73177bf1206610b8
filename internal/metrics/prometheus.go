package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "burnvault"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	feeDeposits       prometheus.Counter
	feeBackdates      prometheus.Counter
	escrowCredits     prometheus.Counter
	fundsConsumed     prometheus.Counter
	burnsExecuted     prometheus.Counter
	burnsRejected     prometheus.Counter
	transfersAllowed  prometheus.Counter
	transfersRejected prometheus.Counter
	allowanceTopUps   prometheus.Counter
	adminChanges      prometheus.Counter
	feedReconnects    prometheus.Counter
	sinkFailures      prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	feeDeposits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "fee_deposits_total",
		Help:      "Total number of fee deposits applied.",
	})
	feeBackdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "fee_backdates_total",
		Help:      "Total number of deposits that backdated the purchase reference tick.",
	})
	escrowCredits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "escrow_credits_total",
		Help:      "Total number of burn escrow credits.",
	})
	fundsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "funds_consumed_total",
		Help:      "Total number of fee consumption operations.",
	})
	burnsExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "burns_executed_total",
		Help:      "Total number of completed burn cycles.",
	})
	burnsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "burns_rejected_total",
		Help:      "Total number of burn attempts rejected by preconditions.",
	})
	transfersAllowed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "transfers_allowed_total",
		Help:      "Total number of transfers passed by the gate.",
	})
	transfersRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "transfers_rejected_total",
		Help:      "Total number of transfers rejected by the gate.",
	})
	allowanceTopUps := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "allowance_topups_total",
		Help:      "Total number of call-scoped allowance increases.",
	})
	adminChanges := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "admin_changes_total",
		Help:      "Total number of committed administrative changes.",
	})
	feedReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "feed_reconnects_total",
		Help:      "Total number of venue feed reconnect attempts.",
	})
	sinkFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sink_failures_total",
		Help:      "Total number of event sink flush failures.",
	})

	registry.MustRegister(
		feeDeposits, feeBackdates, escrowCredits, fundsConsumed,
		burnsExecuted, burnsRejected, transfersAllowed, transfersRejected,
		allowanceTopUps, adminChanges, feedReconnects, sinkFailures,
	)

	m := &Metrics{
		FeeDeposits:       promCounter{feeDeposits},
		FeeBackdates:      promCounter{feeBackdates},
		EscrowCredits:     promCounter{escrowCredits},
		FundsConsumed:     promCounter{fundsConsumed},
		BurnsExecuted:     promCounter{burnsExecuted},
		BurnsRejected:     promCounter{burnsRejected},
		TransfersAllowed:  promCounter{transfersAllowed},
		TransfersRejected: promCounter{transfersRejected},
		AllowanceTopUps:   promCounter{allowanceTopUps},
		AdminChanges:      promCounter{adminChanges},
		FeedReconnects:    promCounter{feedReconnects},
		SinkFailures:      promCounter{sinkFailures},
	}

	return &Prometheus{
		Metrics:           m,
		registry:          registry,
		feeDeposits:       feeDeposits,
		feeBackdates:      feeBackdates,
		escrowCredits:     escrowCredits,
		fundsConsumed:     fundsConsumed,
		burnsExecuted:     burnsExecuted,
		burnsRejected:     burnsRejected,
		transfersAllowed:  transfersAllowed,
		transfersRejected: transfersRejected,
		allowanceTopUps:   allowanceTopUps,
		adminChanges:      adminChanges,
		feedReconnects:    feedReconnects,
		sinkFailures:      sinkFailures,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
