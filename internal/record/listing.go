package record

import (
	"log/slog"

	"github.com/matsen/octosphere/internal/atproto"
)

// Listed is a publication record read back from a repository.
type Listed struct {
	URI    string            `json:"uri"`
	CID    string            `json:"cid"`
	Record PublicationRecord `json:"value"`
}

// FromListing decodes and validates listed records. Records that are not
// well-formed publication records are skipped with a warning.
func FromListing(records []atproto.Record, logger *slog.Logger) []Listed {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	listed := make([]Listed, 0, len(records))
	for _, r := range records {
		var v PublicationRecord
		err := r.Decode(&v)
		if err == nil {
			err = v.Validate()
		}
		if err != nil {
			logger.Warn("skipping malformed record", "uri", r.URI, "error", err)
			continue
		}
		listed = append(listed, Listed{URI: r.URI, CID: r.CID, Record: v})
	}
	return listed
}
