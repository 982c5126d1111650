// Package metrics exposes Prometheus collectors for the task queue,
// pilots and control loops.
package metrics

import (
	"context"
	"time"

	"github.com/alecthomas/units"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cascade"

func init() {
	prometheus.MustRegister(taskStates)
	prometheus.MustRegister(datasetStates)
	prometheus.MustRegister(pilotCount)
	prometheus.MustRegister(pilotTotal)
	prometheus.MustRegister(pilotAvailable)
	prometheus.MustRegister(pilotHeartbeats)
	prometheus.MustRegister(dispatches)
	prometheus.MustRegister(materialized)
	prometheus.MustRegister(loopDuration)
	prometheus.MustRegister(loopErrors)
}

var taskStates = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tasks",
		Name:      "status_count",
		Help:      "Number of tasks in each status.",
	},
	[]string{"status"},
)

var datasetStates = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "datasets",
		Name:      "status_count",
		Help:      "Number of datasets in each status.",
	},
	[]string{"status"},
)

func resetStates() {
	for _, s := range []model.TaskStatus{
		model.TaskWaiting, model.TaskQueued, model.TaskProcessing, model.TaskReset,
		model.TaskFailed, model.TaskSuspended, model.TaskComplete,
	} {
		taskStates.WithLabelValues(string(s)).Set(0)
	}
	for _, s := range []model.DatasetStatus{
		model.DatasetProcessing, model.DatasetSuspended, model.DatasetErrors,
		model.DatasetTruncated, model.DatasetComplete,
	} {
		datasetStates.WithLabelValues(string(s)).Set(0)
	}
}

func init() {
	resetStates()
}

var pilotCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "pilots",
	Name:      "count",
	Help:      "Number of registered pilots.",
})

// Memory and disk are reported in bytes, the rest in their natural unit.
var pilotTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "pilots",
	Name:      "total_resources",
	Help:      "Total resources offered by pilots.",
}, []string{"resource"})

var pilotAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "pilots",
	Name:      "available_resources",
	Help:      "Resources not yet claimed by a running task.",
}, []string{"resource"})

var pilotHeartbeats = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "pilots",
	Name:      "heartbeats_total",
	Help:      "Pilot heartbeat updates received.",
})

var dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tasks",
	Name:      "dispatch_requests_total",
	Help:      "Dispatch requests, by whether a task was handed out.",
}, []string{"result"})

var materialized = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "materialization",
	Name:      "buffered_total",
	Help:      "Jobs and tasks created by materialization.",
}, []string{"kind"})

var loopDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "loops",
	Name:      "run_duration_seconds",
	Help:      "Duration of control loop passes.",
	Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
}, []string{"loop"})

var loopErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "loops",
	Name:      "errors_total",
	Help:      "Control loop passes which returned an error.",
}, []string{"loop"})

// Dispatched counts one dispatch request.
func Dispatched(matched bool) {
	if matched {
		dispatches.WithLabelValues("matched").Inc()
	} else {
		dispatches.WithLabelValues("empty").Inc()
	}
}

// Materialized counts buffered jobs and tasks.
func Materialized(jobs, tasks int) {
	materialized.WithLabelValues("jobs").Add(float64(jobs))
	materialized.WithLabelValues("tasks").Add(float64(tasks))
}

// Heartbeat counts one pilot heartbeat.
func Heartbeat() {
	pilotHeartbeats.Inc()
}

// ObserveLoop records a control loop pass.
func ObserveLoop(name string, d time.Duration, err error) {
	loopDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		loopErrors.WithLabelValues(name).Inc()
	}
}

// Refresh updates the task, dataset and pilot gauges from the store.
func Refresh(ctx context.Context, s *store.Store) error {
	tasks, err := s.TaskStatusCounts(ctx, "")
	if err != nil {
		return err
	}
	datasets, err := s.Datasets().CountBy(ctx, nil, "status")
	if err != nil {
		return err
	}
	pilots, err := s.ListPilots(ctx, nil, database.Project("resources", "resources_available"))
	if err != nil {
		return err
	}

	resetStates()
	for key, count := range tasks {
		taskStates.WithLabelValues(key).Set(float64(count))
	}
	for key, count := range datasets {
		datasetStates.WithLabelValues(key).Set(float64(count))
	}
	UpdatePilots(pilots)
	return nil
}

// UpdatePilots sets the pilot gauges to the sum over the given pilots.
func UpdatePilots(pilots []*model.Pilot) {
	total := map[string]float64{}
	avail := map[string]float64{}
	for _, p := range pilots {
		addResources(total, p.Resources)
		addResources(avail, p.ResourcesAvailable)
	}

	pilotCount.Set(float64(len(pilots)))
	for _, key := range []string{"cpu", "gpu", "memory", "disk", "time"} {
		pilotTotal.WithLabelValues(key).Set(total[key])
		pilotAvailable.WithLabelValues(key).Set(avail[key])
	}
}

func addResources(acc map[string]float64, res map[string]interface{}) {
	for key, v := range res {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		switch key {
		case "memory", "disk":
			f *= float64(units.GB)
		}
		acc[key] += f
	}
}
