package record

import (
	"strings"
	"time"

	"github.com/matsen/octosphere/internal/octopus"
)

// TimestampLayout is the AT Protocol datetime form used for fabricated timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// URLBuilder derives the canonical web URL of a publication version.
// *octopus.Client implements it.
type URLBuilder interface {
	PublicationURL(publicationID, versionID string) string
}

// Build maps a normalized publication and its fetched version content into a
// PublicationRecord. It performs no I/O. urls may be nil, in which case the
// record has no canonical URL; now supplies the fallback timestamp.
//
// All field fallback rules live here:
//
//	title        version.title, publication.title, "Untitled" (trimmed)
//	contentHtml  content.content, version.content, "" (trimmed)
//	contentText  content.text, version.contentText, then contentHtml
//	type         version.publicationType, publication.publicationType, publication.type, "UNKNOWN"
//	status       publication.status, version.status, "LIVE"
//	doi          version.doi, version.doiUrl (normalized to https://doi.org/...)
//	ownerOrcid   publication.ownerId, publication.ownerOrcid
//	peerReviewOf version.peerReviewOf, publication.peerReviewOf
//	timestamps   version, publication, now (flagged as fabricated)
func Build(urls URLBuilder, pub octopus.Publication, content octopus.Fields, now time.Time) PublicationRecord {
	version := pub.Version
	meta := pub.Publication

	html := strings.TrimSpace(firstNonEmpty(content.String("content"), version.String("content")))
	text := strings.TrimSpace(firstNonEmpty(content.String("text"), version.String("contentText")))
	if text == "" {
		text = html
	}

	// A blank version title falls through to the publication title.
	title := firstNonEmpty(strings.TrimSpace(version.String("title")), strings.TrimSpace(meta.String("title")))
	if title == "" {
		title = UntitledTitle
	}

	rec := PublicationRecord{
		Type:            Collection,
		OctopusID:       pub.ID,
		VersionID:       pub.VersionID,
		PublicationType: publicationType(version, meta),
		Title:           title,
		Status:          firstNonEmpty(meta.String("status"), version.String("status"), DefaultStatus),
		ContentHTML:     html,
		ContentText:     text,
		Citations:       citationsFor(version, content),
		LinkedTo:        nonNil(pub.LinkedTo),
		LinkedFrom:      nonNil(pub.LinkedFrom),
		DOI:             NormalizeDOI(version.String("doi", "doiUrl")),
		OwnerORCID:      meta.String("ownerId", "ownerOrcid"),
		PeerReviewOf:    PeerReviewOf(version, meta),
	}

	if now.IsZero() {
		now = time.Now()
	}
	fallback := now.UTC().Format(TimestampLayout)
	rec.CreatedAt = firstNonEmpty(version.String("createdAt"), meta.String("createdAt"))
	rec.UpdatedAt = firstNonEmpty(version.String("updatedAt"), meta.String("updatedAt"))
	if rec.CreatedAt == "" {
		rec.CreatedAt = fallback
		rec.FabricatedTimestamps = true
	}
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = fallback
		rec.FabricatedTimestamps = true
	}

	if urls != nil && pub.ID != "" && pub.VersionID != "" {
		rec.CanonicalURL = urls.PublicationURL(pub.ID, pub.VersionID)
	}
	return rec
}

func publicationType(version, meta octopus.Fields) PublicationType {
	t := firstNonEmpty(
		version.String("publicationType"),
		meta.String("publicationType"),
		meta.String("type"),
	)
	if t == "" {
		return UnknownType
	}
	return PublicationType(t)
}

// citationsFor reads citations from the listed version, falling back to the
// fetched version content when the list response omitted them.
func citationsFor(version, content octopus.Fields) []string {
	if c := ExtractCitations(version); len(c) > 0 {
		return c
	}
	return ExtractCitations(content)
}

// ExtractCitations reads version["references"] or version["citations"].
// String entries are kept as-is; object entries contribute their first
// non-empty "reference", "citation" or "text" value; anything else is dropped.
func ExtractCitations(version octopus.Fields) []string {
	citations := []string{}
	raw, ok := version.Value("references", "citations").([]any)
	if !ok {
		return citations
	}
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			citations = append(citations, v)
		case map[string]any:
			if text := octopus.Fields(v).String("reference", "citation", "text"); text != "" {
				citations = append(citations, text)
			}
		}
	}
	return citations
}

// PeerReviewOf returns the id of the publication a peer review targets,
// preferring the version-level field. The value may be an object carrying
// "publicationId" or "id", or a plain id. Absent values yield "".
func PeerReviewOf(version, meta octopus.Fields) string {
	v := version.Value("peerReviewOf")
	if v == nil {
		v = meta.Value("peerReviewOf")
	}
	if obj, ok := v.(map[string]any); ok {
		return octopus.Fields(obj).String("publicationId", "id")
	}
	return octopus.Fields{"id": v}.String("id")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
