// Package task runs unattended syncs for stored researchers. Nothing in this
// package returns an error to its caller: every failure becomes a logged
// Outcome.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/bridge"
	"github.com/matsen/octosphere/internal/progress"
	"github.com/matsen/octosphere/internal/storage"
)

// ErrCredentialDecryption means the stored app password could not be
// opened with the configured key. The run for that researcher is abandoned.
var ErrCredentialDecryption = errors.New("stored credential cannot be decrypted")

// Store is the subset of storage.DB a run needs.
type Store interface {
	GetConfig(ctx context.Context, orcid string) (*storage.UserConfig, error)
	SyncedSet(ctx context.Context, orcid string) (bridge.Set, error)
	RecordSynced(ctx context.Context, orcid, publicationID, versionID, uri string) error
	TouchLastSync(ctx context.Context, orcid string, t time.Time) error
}

// Authenticator opens repository sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, handle, appPassword string) (*atproto.Session, error)
}

// Opener decrypts sealed credentials.
type Opener interface {
	Open(token string) (string, error)
}

// Syncer runs one sync; *bridge.Engine implements it.
type Syncer interface {
	Sync(ctx context.Context, sess *atproto.Session, sourceUserID string, synced bridge.Set, obs bridge.Observer) (*bridge.Report, error)
}

// Status classifies an Outcome.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip reasons.
const (
	ReasonNotConfigured = "not configured"
	ReasonInactive      = "inactive"
	ReasonNoSourceUser  = "no Octopus user id"
	ReasonRunning       = "sync already running"
)

// Outcome summarises one RunFor call.
type Outcome struct {
	ORCID    string `json:"orcid"`
	RunID    string `json:"run_id,omitempty"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Written  int    `json:"written"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Message  string `json:"error,omitempty"`
	Err      error  `json:"-"`
	Duration string `json:"duration"`
}

// Runner executes syncs for stored researchers.
type Runner struct {
	store   Store
	auth    Authenticator
	box     Opener
	syncer  Syncer
	locks   *Locker
	tracker *progress.Tracker
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithTracker publishes run progress to t.
func WithTracker(t *progress.Tracker) Option {
	return func(r *Runner) {
		r.tracker = t
	}
}

// WithLocker shares a Locker between runners.
func WithLocker(l *Locker) Option {
	return func(r *Runner) {
		r.locks = l
	}
}

// WithClock sets the time source for last_sync.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner.
func NewRunner(store Store, auth Authenticator, box Opener, syncer Syncer, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		auth:   auth,
		box:    box,
		syncer: syncer,
		locks:  NewLocker(),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFor syncs one researcher. It never panics and never returns an error;
// inspect the Outcome instead.
func (r *Runner) RunFor(ctx context.Context, orcid string) (out Outcome) {
	start := r.now()
	log := r.logger.With("orcid", orcid)
	out = Outcome{ORCID: orcid}

	if !r.locks.TryLock(orcid) {
		log.Info("skipping sync", "reason", ReasonRunning)
		return skipped(out, ReasonRunning)
	}
	defer r.locks.Unlock(orcid)

	defer func() {
		if p := recover(); p != nil {
			log.Error("sync panicked", "panic", p, "stack", string(debug.Stack()))
			out = failed(out, fmt.Errorf("panic: %v", p))
			r.fail(orcid, out.Message)
		}
		out.Duration = r.now().Sub(start).Round(time.Millisecond).String()
	}()

	cfg, err := r.store.GetConfig(ctx, orcid)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("skipping sync", "reason", ReasonNotConfigured)
		return skipped(out, ReasonNotConfigured)
	}
	if err != nil {
		log.Error("loading config failed", "error", err)
		return failed(out, err)
	}
	if !cfg.Active {
		log.Info("skipping sync", "reason", ReasonInactive)
		return skipped(out, ReasonInactive)
	}
	if cfg.OctopusUserID == "" {
		log.Info("skipping sync", "reason", ReasonNoSourceUser)
		return skipped(out, ReasonNoSourceUser)
	}

	if r.tracker != nil {
		out.RunID = r.tracker.Start(orcid)
		log = log.With("run", out.RunID)
	}

	password, err := r.box.Open(cfg.EncryptedAppPassword)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCredentialDecryption, err)
		log.Error("credential decryption failed; reconnect the account", "error", err)
		r.fail(orcid, err.Error())
		return failed(out, err)
	}

	sess, err := r.auth.Authenticate(ctx, cfg.BskyHandle, password)
	if err != nil {
		log.Error("authentication failed", "handle", cfg.BskyHandle, "error", err)
		r.fail(orcid, atproto.UserMessage(err))
		return failed(out, err)
	}

	synced, err := r.store.SyncedSet(ctx, orcid)
	if err != nil {
		log.Error("loading ledger failed", "error", err)
		r.fail(orcid, err.Error())
		return failed(out, err)
	}

	var obs bridge.Observer
	if r.tracker != nil {
		obs = r.tracker.Observer(orcid)
	}
	report, syncErr := r.syncer.Sync(ctx, sess, cfg.OctopusUserID, synced, obs)

	// A cancelled run still returns what it wrote; record it even though ctx
	// is done, or the next run would rewrite those records.
	persist := context.WithoutCancel(ctx)
	if report != nil {
		out.Skipped = report.Skipped
		out.Failed = len(report.Failures)
		for _, res := range report.Results {
			if err := r.store.RecordSynced(persist, orcid, res.PublicationID, res.VersionID, res.URI); err != nil {
				log.Error("recording synced publication failed",
					"publication", res.PublicationID, "version", res.VersionID, "error", err)
				out.Failed++
				continue
			}
			out.Written++
		}
	}
	if syncErr != nil {
		log.Error("sync failed", "error", syncErr)
		r.fail(orcid, syncErr.Error())
		return failed(out, syncErr)
	}

	if err := r.store.TouchLastSync(ctx, orcid, r.now()); err != nil {
		log.Error("updating last sync failed", "error", err)
	}

	log.Info("sync complete", "written", out.Written, "skipped", out.Skipped, "failed", out.Failed)
	if r.tracker != nil {
		r.tracker.Complete(orcid, fmt.Sprintf("%d written, %d failed", out.Written, out.Failed))
	}
	out.Status = StatusSynced
	if err := report.Err(); err != nil {
		out.Err = err
		out.Message = err.Error()
	}
	return out
}

func (r *Runner) fail(orcid, msg string) {
	if r.tracker != nil {
		r.tracker.Fail(orcid, msg)
	}
}

func skipped(out Outcome, reason string) Outcome {
	out.Status = StatusSkipped
	out.Reason = reason
	return out
}

func failed(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	out.Message = err.Error()
	return out
}
