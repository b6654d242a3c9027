package builder

import (
	"time"

	"device-report/metrics"
	"device-report/models"
)

// outcome is the result of one stage: a value, a capability gap (warning)
// or a failure.
type outcome[T any] struct {
	value   T
	warning string
	err     error
}

func succeeded[T any](v T) outcome[T] {
	return outcome[T]{value: v}
}

func absent[T any](warning string) outcome[T] {
	return outcome[T]{warning: warning}
}

func failed[T any](err error) outcome[T] {
	return outcome[T]{err: err}
}

// fold records o into r: failures under key, gaps as warnings, values
// through set. It reports whether a value was set.
func fold[T any](r *models.Report, key string, o outcome[T], set func(T)) bool {
	switch {
	case o.err != nil:
		r.AddError(key, o.err)
		return false
	case o.warning != "":
		r.Warn(o.warning)
		return false
	default:
		set(o.value)
		return true
	}
}

// timed runs a stage and records its duration and failure.
func timed[T any](stage string, run func() outcome[T]) outcome[T] {
	start := time.Now()
	o := run()
	metrics.ObserveStage(stage, start, o.err != nil)
	return o
}
