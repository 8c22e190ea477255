package record

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/octosphere/internal/octopus"
)

var fixedNow = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

func encode(t *testing.T, rec PublicationRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	require.NoError(t, enc.Encode(rec))
	return buf.Bytes()
}

func asMap(t *testing.T, rec PublicationRecord) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(encode(t, rec), &m))
	return m
}

func TestBuild_FullRecordGolden(t *testing.T) {
	pub := octopus.Normalize(octopus.RawPublication{
		"publication": map[string]any{
			"id":              "pub-1",
			"title":           "Pub title",
			"status":          "LIVE",
			"ownerId":         "0000-0001-2345-6789",
			"createdAt":       "2024-01-02T03:04:05.000Z",
			"updatedAt":       "2024-02-03T04:05:06.000Z",
			"publicationType": "HYPOTHESIS",
		},
		"latestVersion": map[string]any{
			"id":           "ver-2",
			"title":        "  Version title  ",
			"doi":          "10.57874/abc-123",
			"references":   []any{"Ref A", map[string]any{"reference": "Ref B"}},
			"peerReviewOf": map[string]any{"publicationId": "pub-0"},
		},
		"linked": map[string]any{
			"linkedTo":   []any{map[string]any{"id": "pub-0"}},
			"linkedFrom": []any{},
		},
	})
	content := octopus.Fields{"id": "ver-2", "content": "  <p>Hello</p>  ", "text": "Hello"}
	urls := octopus.NewClient("", "https://www.octopus.ac")

	rec := Build(urls, pub, content, fixedNow)
	assert.False(t, rec.FabricatedTimestamps)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "full_record", encode(t, rec))
}

func TestBuild_MinimalInput(t *testing.T) {
	rec := Build(nil, octopus.Normalize(octopus.RawPublication{}), octopus.Fields{}, fixedNow)

	assert.Equal(t, UntitledTitle, rec.Title)
	assert.Equal(t, "", rec.ContentHTML)
	assert.Equal(t, "", rec.ContentText)
	assert.Equal(t, UnknownType, rec.PublicationType)
	assert.Equal(t, "LIVE", rec.Status)
	assert.Equal(t, "2026-01-15T09:30:00.000Z", rec.CreatedAt)
	assert.Equal(t, "2026-01-15T09:30:00.000Z", rec.UpdatedAt)
	assert.True(t, rec.FabricatedTimestamps)

	m := asMap(t, rec)
	for _, key := range []string{"peerReviewOf", "doi", "ownerOrcid", "canonicalUrl"} {
		assert.NotContains(t, m, key)
	}
	// Required list fields serialise as arrays, never null.
	for _, key := range []string{"citations", "linkedTo", "linkedFrom"} {
		assert.Equal(t, []any{}, m[key], key)
	}
}

func TestBuild_NilContent(t *testing.T) {
	rec := Build(nil, octopus.Publication{}, nil, fixedNow)
	assert.Equal(t, UntitledTitle, rec.Title)
	assert.Empty(t, rec.Citations)
}

func TestBuild_FieldFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		raw     octopus.RawPublication
		content octopus.Fields
		check   func(t *testing.T, rec PublicationRecord)
	}{
		{
			name: "publication title when version has none",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p", "title": " Pub "},
				"latestVersion": map[string]any{"id": "v"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "Pub", rec.Title)
			},
		},
		{
			name: "blank version title falls back to publication title",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p", "title": "Pub"},
				"latestVersion": map[string]any{"id": "v", "title": " \n "},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "Pub", rec.Title)
			},
		},
		{
			name: "blank title becomes Untitled",
			raw:  octopus.RawPublication{"id": "p", "title": "   "},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, UntitledTitle, rec.Title)
			},
		},
		{
			name: "version content used when fetched content is empty",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p"},
				"latestVersion": map[string]any{"id": "v", "content": " <b>v</b> ", "contentText": "v text"},
			},
			content: octopus.Fields{"content": ""},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "<b>v</b>", rec.ContentHTML)
				assert.Equal(t, "v text", rec.ContentText)
			},
		},
		{
			name:    "plain text falls back to html",
			raw:     octopus.RawPublication{"id": "p"},
			content: octopus.Fields{"content": "<p>only html</p>"},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "<p>only html</p>", rec.ContentText)
			},
		},
		{
			name: "type falls back to publication generic type",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p", "type": "DATA"},
				"latestVersion": map[string]any{"id": "v"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, Data, rec.PublicationType)
				assert.True(t, rec.PublicationType.Known())
			},
		},
		{
			name: "version type wins",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p", "publicationType": "DATA"},
				"latestVersion": map[string]any{"id": "v", "publicationType": "ANALYSIS"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, Analysis, rec.PublicationType)
			},
		},
		{
			name: "status from version when publication has none",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p"},
				"latestVersion": map[string]any{"id": "v", "status": "DRAFT"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "DRAFT", rec.Status)
			},
		},
		{
			name: "version timestamps preferred",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p", "createdAt": "2020-01-01T00:00:00Z", "updatedAt": "2020-01-02T00:00:00Z"},
				"latestVersion": map[string]any{"id": "v", "createdAt": "2021-01-01T00:00:00Z"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "2021-01-01T00:00:00Z", rec.CreatedAt)
				assert.Equal(t, "2020-01-02T00:00:00Z", rec.UpdatedAt)
				assert.False(t, rec.FabricatedTimestamps)
			},
		},
		{
			name: "doiUrl is accepted and normalized",
			raw: octopus.RawPublication{
				"publication":   map[string]any{"id": "p"},
				"latestVersion": map[string]any{"id": "v", "doiUrl": "https://dx.doi.org/10.1234/xyz"},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, "https://doi.org/10.1234/xyz", rec.DOI)
			},
		},
		{
			name: "citations from fetched content when list omits them",
			raw:  octopus.RawPublication{"id": "p"},
			content: octopus.Fields{
				"references": []any{map[string]any{"text": "From detail"}},
			},
			check: func(t *testing.T, rec PublicationRecord) {
				assert.Equal(t, []string{"From detail"}, rec.Citations)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Build(nil, octopus.Normalize(tt.raw), tt.content, fixedNow))
		})
	}
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name    string
		version octopus.Fields
		want    []string
	}{
		{"plain strings", octopus.Fields{"references": []any{"A", "B"}}, []string{"A", "B"}},
		{"reference objects", octopus.Fields{"references": []any{map[string]any{"reference": "C"}}}, []string{"C"}},
		{"empty", octopus.Fields{}, []string{}},
		{"citations key", octopus.Fields{"citations": []any{map[string]any{"citation": "D"}}}, []string{"D"}},
		{
			"malformed entries dropped",
			octopus.Fields{"references": []any{"ok", 42.0, map[string]any{"nothing": "here"}, map[string]any{"text": "ok2"}}},
			[]string{"ok", "ok2"},
		},
		{
			"first present key wins",
			octopus.Fields{"references": []any{map[string]any{"reference": "", "citation": "E", "text": "F"}}},
			[]string{"E"},
		},
		{"not a list", octopus.Fields{"references": "A, B"}, []string{}},
		{"empty references falls through to citations", octopus.Fields{"references": []any{}, "citations": []any{"G"}}, []string{"G"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCitations(tt.version))
		})
	}
}

func TestPeerReviewOf(t *testing.T) {
	tests := []struct {
		name    string
		version octopus.Fields
		meta    octopus.Fields
		want    string
	}{
		{"version preferred", octopus.Fields{"peerReviewOf": "pub-v"}, octopus.Fields{"peerReviewOf": "pub-p"}, "pub-v"},
		{"publication fallback", octopus.Fields{}, octopus.Fields{"peerReviewOf": "pub-p"}, "pub-p"},
		{"object with publicationId", octopus.Fields{"peerReviewOf": map[string]any{"publicationId": "pub-x", "id": "ignored"}}, nil, "pub-x"},
		{"object with id", octopus.Fields{"peerReviewOf": map[string]any{"id": "pub-y"}}, nil, "pub-y"},
		{"object without ids", octopus.Fields{"peerReviewOf": map[string]any{"title": "t"}}, nil, ""},
		{"absent", nil, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeerReviewOf(tt.version, tt.meta))
		})
	}
}

func TestBuild_PeerReviewOmittedWhenAbsent(t *testing.T) {
	rec := Build(nil, octopus.Normalize(octopus.RawPublication{"id": "p"}), nil, fixedNow)
	assert.NotContains(t, asMap(t, rec), "peerReviewOf")

	rec = Build(nil, octopus.Normalize(octopus.RawPublication{
		"publication":   map[string]any{"id": "p", "peerReviewOf": "pub-p"},
		"latestVersion": map[string]any{"id": "v", "peerReviewOf": map[string]any{"id": "pub-v"}},
	}), nil, fixedNow)
	assert.Equal(t, "pub-v", asMap(t, rec)["peerReviewOf"])
}

func TestKey(t *testing.T) {
	a := Build(nil, octopus.Normalize(octopus.RawPublication{
		"publication": map[string]any{"id": "pub-7"}, "latestVersion": map[string]any{"id": "ver-1"},
	}), nil, fixedNow)
	b := Build(nil, octopus.Normalize(octopus.RawPublication{
		"publication": map[string]any{"id": "pub-7"}, "latestVersion": map[string]any{"id": "ver-2"},
	}), nil, fixedNow)

	assert.Equal(t, "octopus-pub-7", a.Key())
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "octopus-pub-7", Key("pub-7"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, PublicationRecord{OctopusID: "p", VersionID: "v", Title: "t"}.Validate())
	assert.ErrorIs(t, PublicationRecord{VersionID: "v", Title: "t"}.Validate(), ErrInvalidRecord)
	assert.ErrorIs(t, PublicationRecord{OctopusID: "p", Title: "t"}.Validate(), ErrInvalidRecord)
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.1234/abc", "https://doi.org/10.1234/abc"},
		{"doi:10.1234/abc", "https://doi.org/10.1234/abc"},
		{"https://doi.org/10.1234/abc", "https://doi.org/10.1234/abc"},
		{"http://dx.doi.org/10.1234/abc.", "https://doi.org/10.1234/abc"},
		{"  ", ""},
		{"not a doi", "not a doi"},
	}
	for _, tt := range tests {
		if got := NormalizeDOI(tt.in); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
