package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for tradewise_backtests_total.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeNoData  = "no_data"
	OutcomeError   = "error"
)

// Metrics records backtest activity. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bars     prometheus.Histogram
}

// NewMetrics registers the backtest collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradewise_backtests_total",
			Help: "Backtest requests by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradewise_backtest_duration_seconds",
			Help:    "Wall time of successful backtests including data loading",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"strategy"}),
		bars: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradewise_backtest_bars",
			Help:    "Number of bars per successful backtest",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
	}
}

func (m *Metrics) observe(strategy, outcome string, elapsed time.Duration, bars int) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unknown"
	}
	m.runs.WithLabelValues(strategy, outcome).Inc()
	if outcome == OutcomeOK {
		m.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
		m.bars.Observe(float64(bars))
	}
}
