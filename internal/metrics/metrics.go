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

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server starts.",
		}, []string{"name"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of servers that exited after a stop request without a forced kill.",
		}, []string{"name"},
	)
	serverKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "kills_total",
			Help:      "Number of forced terminations.",
		}, []string{"name"},
	)
	serverCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "crashes_total",
			Help:      "Number of unexpected server exits.",
		}, []string{"name"},
	)
	serverRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Number of restart requests.",
		}, []string{"name"},
	)
	serverCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Console commands written to server stdin, by result.",
		}, []string{"name", "result"},
	)
	outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "output_lines_total",
			Help:      "Console lines captured from server stdout and stderr.",
		}, []string{"name"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsl",
			Subsystem: "server",
			Name:      "running",
			Help:      "Number of supervised servers whose process is alive.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverKills, serverCrashes, serverRestarts, serverCommands, outputLines, running}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// HandlerFor serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name).Inc()
	}
}

func IncKill(name string) {
	if regOK.Load() {
		serverKills.WithLabelValues(name).Inc()
	}
}

func IncCrash(name string) {
	if regOK.Load() {
		serverCrashes.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		serverRestarts.WithLabelValues(name).Inc()
	}
}

// IncCommand counts a console command; delivered selects the result label.
func IncCommand(name string, delivered bool) {
	if regOK.Load() {
		result := "delivered"
		if !delivered {
			result = "failed"
		}
		serverCommands.WithLabelValues(name, result).Inc()
	}
}

func IncOutputLine(name string) {
	if regOK.Load() {
		outputLines.WithLabelValues(name).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		running.Set(float64(n))
	}
}
