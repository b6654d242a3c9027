// Package service drives a single run: build the report, upload it and
// report the outcome to the observers.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"device-report/metrics"
	"device-report/models"
	"device-report/progress"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrRunInProgress = errors.New("a verification run is already in progress")

// Builder fills in a report.
type Builder interface {
	Build(ctx context.Context, r *models.Report, rep *progress.Reporter)
}

// Uploader delivers a finished report.
type Uploader interface {
	Upload(ctx context.Context, r *models.Report) error
}

type Runner struct {
	builder  Builder
	uploader Uploader
	observer progress.Observer

	running atomic.Bool
	newID   func() string
	now     func() time.Time
}

func NewRunner(b Builder, u Uploader, observer progress.Observer) *Runner {
	return &Runner{
		builder:  b,
		uploader: u,
		observer: observer,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Run collects and delivers one report for identity. The report is returned
// even when the run fails. Only one run may be active at a time.
func (r *Runner) Run(ctx context.Context, identity string) (*models.Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	return r.run(ctx, r.newID(), identity)
}

// Start begins a run in the background and returns its id.
func (r *Runner) Start(ctx context.Context, identity string) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	id := r.newID()
	go func() {
		defer r.running.Store(false)
		if _, err := r.run(ctx, id, identity); err != nil {
			log.WithField("run_id", id).Errorf("Run failed: %v", err)
		}
	}()
	return id, nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) run(ctx context.Context, runID, identity string) (report *models.Report, err error) {
	rep := progress.NewReporter(runID, r.observer)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected failure: %v", p)
			log.WithField("run_id", runID).Errorf("Recovered from panic: %v", p)
		}
		metrics.RunsTotal.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			rep.Failed(err)
		}
	}()

	rep.Status("Initializing verification...")
	rep.Progress(5)
	report = models.NewReport(runID, identity, r.now().UTC())

	r.builder.Build(ctx, report, rep)

	rep.Status("Sending verification data...")
	if err := r.uploader.Upload(ctx, report); err != nil {
		return report, err
	}
	rep.Progress(100)
	rep.Completed("Verification complete!")
	return report, nil
}
