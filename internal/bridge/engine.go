// Package bridge decides which Octopus publications need a record, builds it,
// and writes it under a deterministic key.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/octopus"
	"github.com/matsen/octosphere/internal/record"
)

// ErrMissingID indicates a listed publication without a publication id,
// which cannot be keyed.
var ErrMissingID = errors.New("publication has no id")

// Source is the subset of the Octopus client the engine needs.
type Source interface {
	ListPublications(ctx context.Context, userID string) ([]octopus.RawPublication, error)
	FetchPublication(ctx context.Context, publicationID string) (octopus.RawPublication, error)
	PublicationURL(publicationID, versionID string) string
}

// Repository is the subset of the AT Protocol client the engine needs.
type Repository interface {
	PutRecord(ctx context.Context, sess *atproto.Session, collection, rkey string, rec any) (*atproto.CreateRecordResult, error)
}

// Observer receives progress while a sync runs. Implementations must be
// safe to call from the goroutine running the sync.
type Observer interface {
	OnStart(total int)
	OnResult(Result)
	OnFailure(Failure)
}

// Result describes one record written during a run.
type Result struct {
	PublicationID string `json:"publication_id"`
	VersionID     string `json:"version_id"`
	URI           string `json:"uri"`
	CID           string `json:"cid"`
	// FabricatedTimestamps is true when Octopus omitted createdAt/updatedAt
	// and the build time was written instead.
	FabricatedTimestamps bool `json:"fabricated_timestamps,omitempty"`
}

// Failure describes a publication that could not be synced.
type Failure struct {
	PublicationID string `json:"publication_id"`
	VersionID     string `json:"version_id"`
	Message       string `json:"error"`
	Err           error  `json:"-"`
}

func newFailure(pub octopus.Publication, err error) Failure {
	return Failure{PublicationID: pub.ID, VersionID: pub.VersionID, Message: err.Error(), Err: err}
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s/%s: %v", f.PublicationID, f.VersionID, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of one sync run.
type Report struct {
	Total    int       `json:"total"`
	Skipped  int       `json:"skipped"`
	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures"`
}

// Err joins all per-publication failures, or returns nil.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Engine runs syncs for one Octopus source and one repository client.
type Engine struct {
	source Source
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the time source used for fabricated timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine.
func NewEngine(source Source, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync writes a record for every publication of sourceUserID whose
// (publication id, version id) pair is not in synced.
//
// A failure to list publications aborts the run and is returned. Failures for
// individual publications are collected in the report and the run continues.
// The engine does not persist anything; callers record the results.
// obs may be nil.
func (e *Engine) Sync(ctx context.Context, sess *atproto.Session, sourceUserID string, synced Set, obs Observer) (*Report, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	raw, err := e.source.ListPublications(ctx, sourceUserID)
	if err != nil {
		return nil, fmt.Errorf("listing publications for %s: %w", sourceUserID, err)
	}

	report := &Report{Total: len(raw), Results: []Result{}, Failures: []Failure{}}
	pending := make([]octopus.Publication, 0, len(raw))
	for _, item := range raw {
		pub := octopus.Normalize(item)
		if synced.Has(pub.ID, pub.VersionID) {
			e.logger.Debug("skipping already synced publication", "publication", pub.ID, "version", pub.VersionID)
			report.Skipped++
			continue
		}
		pending = append(pending, pub)
	}
	obs.OnStart(len(pending))

	for _, pub := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := e.syncOne(ctx, sess, pub)
		if err != nil {
			f := newFailure(pub, err)
			e.logger.Warn("publication sync failed", "publication", pub.ID, "version", pub.VersionID, "error", err)
			report.Failures = append(report.Failures, f)
			obs.OnFailure(f)
			continue
		}
		report.Results = append(report.Results, res)
		obs.OnResult(res)
	}

	e.logger.Info("sync finished",
		"user", sourceUserID,
		"total", report.Total,
		"skipped", report.Skipped,
		"written", len(report.Results),
		"failed", len(report.Failures))
	return report, nil
}

// syncOne fetches, builds and writes the record for a single publication.
func (e *Engine) syncOne(ctx context.Context, sess *atproto.Session, pub octopus.Publication) (Result, error) {
	if pub.ID == "" {
		return Result{}, ErrMissingID
	}

	// List responses omit body content and the per-version endpoint is
	// forbidden, so content comes from the publication detail.
	detail, err := e.source.FetchPublication(ctx, pub.ID)
	if err != nil {
		return Result{}, fmt.Errorf("fetching publication: %w", err)
	}
	content := octopus.SelectVersion(detail, pub.VersionID)

	rec := record.Build(e.source, pub, content, e.now())
	if rec.FabricatedTimestamps {
		e.logger.Warn("Octopus omitted timestamps; using sync time",
			"publication", pub.ID, "version", pub.VersionID, "createdAt", rec.CreatedAt)
	}

	created, err := e.repo.PutRecord(ctx, sess, record.Collection, rec.Key(), rec)
	if err != nil {
		return Result{}, fmt.Errorf("writing record %s: %w", rec.Key(), err)
	}

	return Result{
		PublicationID:        pub.ID,
		VersionID:            pub.VersionID,
		URI:                  created.URI,
		CID:                  created.CID,
		FabricatedTimestamps: rec.FabricatedTimestamps,
	}, nil
}

type nopObserver struct{}

func (nopObserver) OnStart(int)       {}
func (nopObserver) OnResult(Result)   {}
func (nopObserver) OnFailure(Failure) {}
