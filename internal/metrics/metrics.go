// Package metrics records run statistics in a Prometheus registry that can be
// written out for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"calreport/internal/apperr"
)

const namespace = "calreport"

// Recorder holds the metrics of one report run.
type Recorder struct {
	registry *prometheus.Registry

	eventsFetched prometheus.Counter
	eventsSkipped *prometheus.CounterVec
	reportRows    prometheus.Gauge
	creatorHours  *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// New creates a Recorder on its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.eventsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_fetched_total",
		Help:      "Events returned by the calendar backend",
	})
	r.eventsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_skipped_total",
		Help:      "Events dropped during normalization by reason",
	}, []string{"reason"})
	r.reportRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "report_rows",
		Help:      "Data rows written to the report",
	})
	r.creatorHours = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "creator_hours",
		Help:      "Booked hours per event creator",
	}, []string{"creator_email"})
	r.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last successful report",
	})

	r.registry.MustRegister(
		r.eventsFetched, r.eventsSkipped, r.reportRows,
		r.creatorHours, r.lastRun,
	)
	return r
}

// Fetched adds n fetched events.
func (r *Recorder) Fetched(n int) {
	r.eventsFetched.Add(float64(n))
}

// Skipped adds n events skipped for reason.
func (r *Recorder) Skipped(reason string, n int) {
	r.eventsSkipped.WithLabelValues(reason).Add(float64(n))
}

// Rows sets the number of report rows.
func (r *Recorder) Rows(n int) {
	r.reportRows.Set(float64(n))
}

// CreatorHours adds hours to a creator's total.
func (r *Recorder) CreatorHours(email string, hours float64) {
	r.creatorHours.WithLabelValues(email).Add(hours)
}

// Finished stamps the completion time of a successful run.
func (r *Recorder) Finished(t time.Time) {
	r.lastRun.Set(float64(t.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "failed to write metrics file")
	}
	return nil
}
