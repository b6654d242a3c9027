package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RunsTotal counts finished runs by result (completed, failed).
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "device_report",
		Name:      "runs_total",
		Help:      "Total number of report runs, labeled by result.",
	}, []string{"result"})

	// StageDurationSeconds is the wall-clock time of each builder stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "device_report",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each report stage.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"stage"})

	StageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "device_report",
		Name:      "stage_failures_total",
		Help:      "Total number of stage failures recorded into a report.",
	}, []string{"stage"})

	VideoUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "device_report",
		Name:      "video_uploads_total",
		Help:      "Total number of video attachments sent, labeled by result.",
	}, []string{"result"})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			StageDurationSeconds,
			StageFailuresTotal,
			VideoUploadsTotal,
		)
	})
}

// ObserveStage records the duration of a stage that started at start and
// counts it as failed when failed is set.
func ObserveStage(stage string, start time.Time, failed bool) {
	StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if failed {
		StageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}
