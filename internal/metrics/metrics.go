// Package metrics exposes engine activity counters over Prometheus.
// Register must be called once at startup; the increment helpers are safe
// to call before that (they no-op).
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "dpm_"

var (
	registerOnce sync.Once

	ticksTotal            prometheus.Counter
	transitionsTotal      *prometheus.CounterVec
	applyFailuresTotal    *prometheus.CounterVec
	taskEventsTotal       *prometheus.CounterVec
	cyclicSuppressedTotal prometheus.Counter
	commandsTotal         *prometheus.CounterVec
	reloadsTotal          *prometheus.CounterVec
)

// Register registers the engine metrics with the default registry.
func Register() {
	registerOnce.Do(func() {
		ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "ticks_total",
			Help: "Total control loop ticks",
		})
		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "relay_transitions_total",
			Help: "Total committed relay transitions by resulting state",
		}, []string{"to"})
		applyFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "apply_failures_total",
			Help: "Total physical apply failures by origin",
		}, []string{"origin"})
		taskEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "task_events_total",
			Help: "Total task predicate edges by kind (start/clear)",
		}, []string{"kind"})
		cyclicSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "cyclic_triggers_suppressed_total",
			Help: "Total task re-triggers suppressed by cycle protection",
		})
		commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "operator_commands_total",
			Help: "Total operator commands by result",
		}, []string{"result"})
		reloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "config_reloads_total",
			Help: "Total configuration reload attempts by result",
		}, []string{"result"})

		prometheus.MustRegister(
			ticksTotal,
			transitionsTotal,
			applyFailuresTotal,
			taskEventsTotal,
			cyclicSuppressedTotal,
			commandsTotal,
			reloadsTotal,
		)
	})
}

// IncTick counts one control loop tick.
func IncTick() {
	if ticksTotal != nil {
		ticksTotal.Inc()
	}
}

// IncTransition counts a committed relay transition.
func IncTransition(to string) {
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(to).Inc()
	}
}

// AddApplyFailures counts physical apply failures from the given origin
// (schedule, task, pulse, command).
func AddApplyFailures(origin string, n int) {
	if n > 0 && applyFailuresTotal != nil {
		applyFailuresTotal.WithLabelValues(origin).Add(float64(n))
	}
}

// IncTaskEvent counts a task predicate edge.
func IncTaskEvent(kind string) {
	if taskEventsTotal != nil {
		taskEventsTotal.WithLabelValues(kind).Inc()
	}
}

// AddCyclicSuppressed counts suppressed re-triggers.
func AddCyclicSuppressed(n int) {
	if n > 0 && cyclicSuppressedTotal != nil {
		cyclicSuppressedTotal.Add(float64(n))
	}
}

// IncCommand counts an operator command by result (applied, rejected,
// failed).
func IncCommand(result string) {
	if commandsTotal != nil {
		commandsTotal.WithLabelValues(result).Inc()
	}
}

// IncReload counts a configuration reload attempt.
func IncReload(result string) {
	if reloadsTotal != nil {
		reloadsTotal.WithLabelValues(result).Inc()
	}
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Results for IncCommand and IncReload.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultSuccess  = "success"
)
