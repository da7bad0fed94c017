package bpmn

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges the executor and façade update.
// A nil *Metrics is valid everywhere it's read; callers that don't need
// metrics simply leave out the WithMetrics option.
type Metrics struct {
	InstancesStarted   prometheus.Counter
	InstancesCompleted prometheus.Counter
	InstancesFailed    prometheus.Counter
	ActiveInstances    prometheus.Gauge
}

// NewMetrics registers the engine's collectors against reg and returns the
// handles the executor/façade update as instances progress.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InstancesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bpmn", Name: "instances_started_total", Help: "Process instances started.",
		}),
		InstancesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bpmn", Name: "instances_completed_total", Help: "Process instances that reached an end event.",
		}),
		InstancesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bpmn", Name: "instances_failed_total", Help: "Process instances that failed during advance.",
		}),
		ActiveInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bpmn", Name: "instances_active", Help: "Instances currently RUNNING, SUSPENDED_AT_USER_TASK or SUSPENDED_ADMIN.",
		}),
	}
	reg.MustRegister(m.InstancesStarted, m.InstancesCompleted, m.InstancesFailed, m.ActiveInstances)
	return m
}
