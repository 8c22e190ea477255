// Package record defines the social.octosphere.publication record and builds
// it from normalized Octopus publications.
package record

import (
	"errors"
	"fmt"
)

const (
	// Collection is the lexicon NSID every bridged record is stored under.
	// Existing records are keyed on it; renaming it needs a migration.
	Collection = "social.octosphere.publication"

	// KeyPrefix prefixes the deterministic record key.
	KeyPrefix = "octopus"

	// DefaultStatus is used when neither the publication nor the version carries one.
	DefaultStatus = "LIVE"

	// UntitledTitle is used when no title is available.
	UntitledTitle = "Untitled"
)

// PublicationType is an Octopus publication type.
type PublicationType string

// Known publication types from the lexicon.
const (
	ResearchProblem      PublicationType = "RESEARCH_PROBLEM"
	Hypothesis           PublicationType = "HYPOTHESIS"
	Protocol             PublicationType = "PROTOCOL"
	Analysis             PublicationType = "ANALYSIS"
	Interpretation       PublicationType = "INTERPRETATION"
	RealWorldApplication PublicationType = "REAL_WORLD_APPLICATION"
	Data                 PublicationType = "DATA"
	PeerReview           PublicationType = "PEER_REVIEW"
	UnknownType          PublicationType = "UNKNOWN"
)

var knownTypes = map[PublicationType]bool{
	ResearchProblem:      true,
	Hypothesis:           true,
	Protocol:             true,
	Analysis:             true,
	Interpretation:       true,
	RealWorldApplication: true,
	Data:                 true,
	PeerReview:           true,
}

// Known reports whether t is one of the eight Octopus types.
// Unknown values are still written; Octopus may add types before the lexicon does.
func (t PublicationType) Known() bool {
	return knownTypes[t]
}

// PublicationRecord is the wire form of a bridged publication.
// Field names are an external contract; optional fields are omitted when empty.
type PublicationRecord struct {
	Type            string          `json:"$type"`
	OctopusID       string          `json:"octopusId"`
	VersionID       string          `json:"versionId"`
	PublicationType PublicationType `json:"publicationType"`
	Title           string          `json:"title"`
	Status          string          `json:"status"`
	ContentHTML     string          `json:"contentHtml"`
	ContentText     string          `json:"contentText"`
	Citations       []string        `json:"citations"`
	LinkedTo        []string        `json:"linkedTo"`
	LinkedFrom      []string        `json:"linkedFrom"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
	DOI             string          `json:"doi,omitempty"`
	OwnerORCID      string          `json:"ownerOrcid,omitempty"`
	PeerReviewOf    string          `json:"peerReviewOf,omitempty"`
	CanonicalURL    string          `json:"canonicalUrl,omitempty"`

	// FabricatedTimestamps is set when CreatedAt or UpdatedAt had to be
	// filled with the build time because Octopus omitted them.
	FabricatedTimestamps bool `json:"-"`
}

// Key returns the deterministic record key for this record.
func (r PublicationRecord) Key() string {
	return Key(r.OctopusID)
}

// Key returns the deterministic record key for a publication id.
// It depends on the publication id only, so a new version of a publication
// replaces the record written for the previous one.
func Key(publicationID string) string {
	return KeyPrefix + "-" + publicationID
}

// ErrInvalidRecord indicates a record missing required fields.
var ErrInvalidRecord = errors.New("invalid publication record")

// Validate checks that the required identifying fields are present.
// It is used to skip foreign or corrupted records when listing.
func (r PublicationRecord) Validate() error {
	switch {
	case r.OctopusID == "":
		return fmt.Errorf("%w: missing octopusId", ErrInvalidRecord)
	case r.VersionID == "":
		return fmt.Errorf("%w: missing versionId", ErrInvalidRecord)
	case r.Title == "":
		return fmt.Errorf("%w: missing title", ErrInvalidRecord)
	}
	return nil
}
