// Package metrics counts run outcomes and pushes them to a Prometheus
// Pushgateway once the run is over.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Config struct {
	PushURL string `envconfig:"METRICS_PUSHGATEWAY_URL"`
	Job     string `envconfig:"METRICS_JOB" default:"exam_mailer"`
}

// Recorder holds the run metrics in its own registry so a push carries only
// this run's series.
type Recorder struct {
	config       Config
	registry     *prometheus.Registry
	rows         *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	lastRun      prometheus.Gauge
	provider     *metric.MeterProvider
}

func New(config Config) *Recorder {
	r := &Recorder{
		config:   config,
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_mailer_rows_total",
				Help: "Roster rows processed, by terminal outcome",
			},
			[]string{"outcome"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exam_mailer_send_duration_seconds",
				Help:    "Duration of one SMTP delivery attempt",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exam_mailer_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}

	r.registry.MustRegister(r.rows, r.sendDuration, r.lastRun)
	return r
}

// Outcome counts one row in its terminal state.
func (r *Recorder) Outcome(outcome string) {
	r.rows.WithLabelValues(outcome).Inc()
}

// ObserveSend records how long a delivery attempt took.
func (r *Recorder) ObserveSend(d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.sendDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Registry exposes the registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the collected metrics to the Pushgateway. Without a URL it does
// nothing.
func (r *Recorder) Push(ctx context.Context) error {
	if r.config.PushURL == "" {
		return nil
	}

	r.lastRun.SetToCurrentTime()

	job := r.config.Job
	if job == "" {
		job = "exam_mailer"
	}

	err := push.New(r.config.PushURL, job).
		Gatherer(r.registry).
		PushContext(ctx)
	return errors.Wrap(err, "failed to push metrics")
}
