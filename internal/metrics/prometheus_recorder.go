package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration     *prom.HistogramVec
	taskResults      *prom.CounterVec
	pipelineDuration *prom.HistogramVec
	filesWritten     *prom.CounterVec
	fileFailures     *prom.CounterVec
	fileChanges      *prom.CounterVec
	runsQueued       *prom.CounterVec
	buildOutcome     *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "frontbuild",
			Name:      "task_duration_seconds",
			Help:      "Duration of build task actions",
			Buckets:   prom.DefBuckets,
		}, []string{"task"}),
		taskResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "task_results_total",
			Help:      "Task results by outcome",
		}, []string{"task", "result"}),
		pipelineDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "frontbuild",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of asset pipeline runs",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline"}),
		filesWritten: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "files_written_total",
			Help:      "Output files written (unchanged files excluded)",
		}, []string{"pipeline"}),
		fileFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "file_failures_total",
			Help:      "Source files that failed, by pipeline and stage",
		}, []string{"pipeline", "stage"}),
		fileChanges: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "watch_file_changes_total",
			Help:      "File changes routed to each pipeline",
		}, []string{"pipeline"}),
		runsQueued: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "watch_runs_queued_total",
			Help:      "Rebuilds queued behind a run in progress",
		}, []string{"pipeline"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "frontbuild",
			Name:      "command_outcomes_total",
			Help:      "Command outcomes by final status",
		}, []string{"command", "outcome"}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskResults, pr.pipelineDuration, pr.filesWritten,
		pr.fileFailures, pr.fileChanges, pr.runsQueued, pr.buildOutcome)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task string, result ResultLabel) {
	if p == nil {
		return
	}
	p.taskResults.WithLabelValues(task, string(result)).Inc()
}

func (p *PrometheusRecorder) ObservePipelineDuration(pipeline string, d time.Duration) {
	if p == nil {
		return
	}
	p.pipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddFilesWritten(pipeline string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.filesWritten.WithLabelValues(pipeline).Add(float64(n))
}

func (p *PrometheusRecorder) IncFileFailure(pipeline, stage string) {
	if p == nil {
		return
	}
	p.fileFailures.WithLabelValues(pipeline, stage).Inc()
}

func (p *PrometheusRecorder) IncFileChange(pipeline string) {
	if p == nil {
		return
	}
	p.fileChanges.WithLabelValues(pipeline).Inc()
}

func (p *PrometheusRecorder) IncRunQueued(pipeline string) {
	if p == nil {
		return
	}
	p.runsQueued.WithLabelValues(pipeline).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(command string, success bool) {
	if p == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "success"
	}
	p.buildOutcome.WithLabelValues(command, outcome).Inc()
}
