// Package metrics records build and dev-server metrics in Prometheus.
//
// A nil *Recorder is valid and records nothing, so components take a
// recorder without checking whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "frontbuild"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Reload kinds.
const (
	ReloadFull = "full"
	ReloadCSS  = "css"
)

// Recorder holds the Prometheus collectors on a private registry.
type Recorder struct {
	registry       *prom.Registry
	stepDuration   *prom.HistogramVec
	stepResults    *prom.CounterVec
	filesProcessed *prom.CounterVec
	reloads        *prom.CounterVec
	liveClients    prom.Gauge
}

// NewRecorder constructs and registers the collectors. A nil registry gets a
// fresh private one.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		registry: reg,
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual build steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"}),
		stepResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"}),
		filesProcessed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Files written by each step",
		}, []string{"step"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Live reload messages broadcast by kind",
		}, []string{"kind"}),
		liveClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected live reload clients",
		}),
	}
	reg.MustRegister(r.stepDuration, r.stepResults, r.filesProcessed, r.reloads, r.liveClients)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) ObserveStepDuration(step string, d time.Duration) {
	if r == nil {
		return
	}
	r.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (r *Recorder) IncStepResult(step string, result ResultLabel) {
	if r == nil {
		return
	}
	r.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (r *Recorder) AddFilesProcessed(step string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.filesProcessed.WithLabelValues(step).Add(float64(n))
}

func (r *Recorder) IncReload(kind string) {
	if r == nil {
		return
	}
	r.reloads.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetLiveClients(n int) {
	if r == nil {
		return
	}
	r.liveClients.Set(float64(n))
}
