// Package progress keeps the status of in-flight and finished syncs, keyed
// by researcher, for callers that poll.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matsen/octosphere/internal/bridge"
)

// State is the lifecycle stage of a run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is a snapshot of one researcher's latest run.
type Status struct {
	RunID     string    `json:"run_id"`
	ORCID     string    `json:"orcid"`
	State     State     `json:"state"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// Tracker is a mutex-guarded map of statuses. The zero value is not usable;
// call NewTracker.
type Tracker struct {
	mu       sync.Mutex
	statuses map[string]*Status
	now      func() time.Time
	notify   func(Status)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithNotify calls fn with a snapshot after every change. fn runs outside
// the tracker lock and may call back into the tracker.
func WithNotify(fn func(Status)) Option {
	return func(t *Tracker) {
		t.notify = fn
	}
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{statuses: make(map[string]*Status), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a new run for orcid, replacing any previous status, and
// returns its run id.
func (t *Tracker) Start(orcid string) string {
	t.mu.Lock()
	now := t.now()
	s := &Status{
		RunID:     uuid.NewString(),
		ORCID:     orcid,
		State:     StateRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.statuses[orcid] = s
	snapshot := *s
	t.mu.Unlock()

	t.publish(snapshot)
	return snapshot.RunID
}

// SetTotal records how many publications the run will attempt.
func (t *Tracker) SetTotal(orcid string, total int) {
	t.update(orcid, func(s *Status) { s.Total = total })
}

// Advance counts one processed publication; failed marks it unsuccessful.
func (t *Tracker) Advance(orcid string, failed bool) {
	t.update(orcid, func(s *Status) {
		s.Done++
		if failed {
			s.Failed++
		}
	})
}

// Complete marks the run finished.
func (t *Tracker) Complete(orcid, message string) {
	t.update(orcid, func(s *Status) {
		s.State = StateCompleted
		s.Message = message
	})
}

// Fail marks the run aborted.
func (t *Tracker) Fail(orcid, message string) {
	t.update(orcid, func(s *Status) {
		s.State = StateFailed
		s.Message = message
	})
}

// Get returns the current status for orcid.
func (t *Tracker) Get(orcid string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[orcid]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// Consume returns the status for orcid and, if the run has finished,
// forgets it.
func (t *Tracker) Consume(orcid string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[orcid]
	if !ok {
		return Status{}, false
	}
	if s.Terminal() {
		delete(t.statuses, orcid)
	}
	return *s, true
}

func (t *Tracker) update(orcid string, fn func(*Status)) {
	t.mu.Lock()
	s, ok := t.statuses[orcid]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(s)
	s.UpdatedAt = t.now()
	snapshot := *s
	t.mu.Unlock()

	t.publish(snapshot)
}

func (t *Tracker) publish(s Status) {
	if t.notify != nil {
		t.notify(s)
	}
}

// Observer adapts the tracker to a bridge.Observer for orcid.
func (t *Tracker) Observer(orcid string) bridge.Observer {
	return observer{t: t, orcid: orcid}
}

type observer struct {
	t     *Tracker
	orcid string
}

func (o observer) OnStart(total int)        { o.t.SetTotal(o.orcid, total) }
func (o observer) OnResult(bridge.Result)   { o.t.Advance(o.orcid, false) }
func (o observer) OnFailure(bridge.Failure) { o.t.Advance(o.orcid, true) }
