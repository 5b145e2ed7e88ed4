package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of restarts.",
		}, []string{"name"},
	)
	processDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "deletes_total",
			Help:      "Number of deleted process records.",
		}, []string{"name"},
	)
	logRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "log_rotations_total",
			Help:      "Number of log file rotations.",
		}, []string{"name"},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procman",
			Subsystem: "supervisor",
			Name:      "running_processes",
			Help:      "Current number of processes observed running.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, processStops, processRestarts, processDeletes, logRotations, runningProcesses}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name).Inc()
	}
}

func IncDelete(name string) {
	if regOK.Load() {
		processDeletes.WithLabelValues(name).Inc()
	}
}

func IncLogRotation(name string) {
	if regOK.Load() {
		logRotations.WithLabelValues(name).Inc()
	}
}

func SetRunningProcesses(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}
