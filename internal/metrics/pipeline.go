// Package metrics holds the generation pipeline collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counts generation outcomes and times each stage. A nil *Pipeline records nothing.
type Pipeline struct {
	generations          *prometheus.CounterVec
	stageDuration        *prometheus.HistogramVec
	historyWriteFailures prometheus.Counter
}

// NewPipeline creates the collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imagegen_generations_total",
				Help: "Generations by terminal outcome.",
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imagegen_stage_duration_seconds",
				Help:    "Duration of each generation stage.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		historyWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagegen_history_write_failures_total",
			Help: "Generations whose history row could not be written.",
		}),
	}

	for _, c := range []prometheus.Collector{p.generations, p.stageDuration, p.historyWriteFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveStage records how long stage took since start.
func (p *Pipeline) ObserveStage(stage string, start time.Time) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Outcome counts a finished generation.
func (p *Pipeline) Outcome(outcome string) {
	if p == nil {
		return
	}
	p.generations.WithLabelValues(outcome).Inc()
}

// HistoryWriteFailed counts a run that reached done without a history row.
func (p *Pipeline) HistoryWriteFailed() {
	if p == nil {
		return
	}
	p.historyWriteFailures.Inc()
}
