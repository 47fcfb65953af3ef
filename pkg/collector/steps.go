package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pharos-autotask/pharos-autotask/pkg/pipeline"
)

// StepRecorder turns pipeline outcomes into Prometheus series.
type StepRecorder struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cycles   prometheus.Counter
}

var _ pipeline.Recorder = (*StepRecorder)(nil)

func NewStepRecorder() *StepRecorder {
	return &StepRecorder{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pharos_task_step_total",
			Help: "Pipeline steps by outcome",
		}, []string{"step", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pharos_task_step_duration_seconds",
			Help:    "Time spent in pipeline steps",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 900, 3600},
		}, []string{"step"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pharos_task_cycles_total",
			Help: "Completed passes over all wallets",
		}),
	}
}

// ObserveStep counts every outcome. Skipped steps never ran and are kept out
// of the duration histogram.
func (r *StepRecorder) ObserveStep(step string, status pipeline.Status, elapsed time.Duration) {
	r.steps.WithLabelValues(step, string(status)).Inc()
	if status != pipeline.StatusSkipped {
		r.duration.WithLabelValues(step).Observe(elapsed.Seconds())
	}
}

func (r *StepRecorder) ObserveCycle() {
	r.cycles.Inc()
}

func (r *StepRecorder) Describe(ch chan<- *prometheus.Desc) {
	r.steps.Describe(ch)
	r.duration.Describe(ch)
	r.cycles.Describe(ch)
}

func (r *StepRecorder) Collect(ch chan<- prometheus.Metric) {
	r.steps.Collect(ch)
	r.duration.Collect(ch)
	r.cycles.Collect(ch)
}
