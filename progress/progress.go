// Package progress carries the status signal of a run to its observers.
package progress

import (
	"sync"
	"time"

	"github.com/apex/log"
)

type Kind string

const (
	KindStatus    Kind = "status"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

type Event struct {
	RunID   string    `json:"run_id"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message,omitempty"`
	Percent int       `json:"percent"`
	Time    time.Time `json:"time"`
}

type Observer interface {
	Notify(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Multi fans an event out to every observer in order.
type Multi []Observer

func (m Multi) Notify(e Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(e)
		}
	}
}

// Reporter emits the events of one run.
type Reporter struct {
	runID    string
	observer Observer
	percent  int
	now      func() time.Time
}

func NewReporter(runID string, observer Observer) *Reporter {
	return &Reporter{runID: runID, observer: observer, now: time.Now}
}

func (r *Reporter) emit(kind Kind, msg string) {
	if r == nil || r.observer == nil {
		return
	}
	r.observer.Notify(Event{RunID: r.runID, Kind: kind, Message: msg, Percent: r.percent, Time: r.now()})
}

func (r *Reporter) Status(msg string) {
	r.emit(KindStatus, msg)
}

// Progress sets the completion percentage, clamped to [0,100].
func (r *Reporter) Progress(percent int) {
	if r == nil {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	r.percent = percent
	r.emit(KindProgress, "")
}

func (r *Reporter) Completed(msg string) {
	if r == nil {
		return
	}
	r.percent = 100
	r.emit(KindCompleted, msg)
}

func (r *Reporter) Failed(err error) {
	if r == nil {
		return
	}
	r.percent = 100
	r.emit(KindFailed, err.Error())
}

// LogObserver writes every event to the log.
type LogObserver struct{}

func (LogObserver) Notify(e Event) {
	entry := log.WithFields(log.Fields{"run_id": e.RunID, "percent": e.Percent})
	switch e.Kind {
	case KindStatus:
		entry.Info(e.Message)
	case KindProgress:
		entry.Debug("progress")
	case KindCompleted:
		entry.Info(e.Message)
	case KindFailed:
		entry.Error(e.Message)
	}
}

// Snapshot is the latest known state of a run.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Percent   int       `json:"percent"`
	Done      bool      `json:"done"`
	Failed    bool      `json:"failed"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker keeps the latest snapshot so it can be read from other goroutines.
type Tracker struct {
	mu   sync.RWMutex
	last Snapshot
}

func (t *Tracker) Notify(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.RunID != t.last.RunID {
		t.last = Snapshot{RunID: e.RunID}
	}
	t.last.Percent = e.Percent
	t.last.UpdatedAt = e.Time
	switch e.Kind {
	case KindStatus:
		t.last.Status = e.Message
	case KindCompleted:
		t.last.Status = e.Message
		t.last.Done = true
	case KindFailed:
		t.last.Status = "Verification failed"
		t.last.Error = e.Message
		t.last.Done = true
		t.last.Failed = true
	}
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}
