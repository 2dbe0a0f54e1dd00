// Package metrics records adapter call outcomes as Prometheus metrics.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "odatamongo"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // validation failure or contract violation
	OutcomeError    = "error"    // store or resolver failure
)

// Recorder counts verb calls and observes their latency.
//
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Number of adapter verb calls by outcome.",
			},
			[]string{"verb", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Latency of adapter verb calls, store round-trips included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
	}

	for _, c := range []prometheus.Collector{r.calls, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is like New but panics on registration failure.
func MustNew(reg prometheus.Registerer) *Recorder {
	r, err := New(reg)
	if err != nil {
		panic(err)
	}
	return r
}

// Observe records one call of verb.
func (r *Recorder) Observe(verb, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(verb, outcome).Inc()
	r.duration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// WriteText writes every metric family gathered from g to w in the
// Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
