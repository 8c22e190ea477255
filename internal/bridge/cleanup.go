package bridge

import (
	"sort"
	"strings"

	"github.com/matsen/octosphere/internal/atproto"
	"github.com/matsen/octosphere/internal/record"
)

// DuplicateGroup is a publication that has more than one record.
type DuplicateGroup struct {
	PublicationID string           `json:"publication_id"`
	Keep          atproto.Record   `json:"keep"`
	Delete        []atproto.Record `json:"delete"`
}

// PlanCleanup groups listed records by octopusId and, for every publication
// with more than one record, keeps the record stored under the deterministic
// key (or the first listed one) and marks the rest for deletion. Records
// without an octopusId are left alone.
func PlanCleanup(records []atproto.Record) []DuplicateGroup {
	byPub := make(map[string][]atproto.Record)
	var order []string
	for _, r := range records {
		var value struct {
			OctopusID string `json:"octopusId"`
		}
		if err := r.Decode(&value); err != nil || value.OctopusID == "" {
			continue
		}
		if _, seen := byPub[value.OctopusID]; !seen {
			order = append(order, value.OctopusID)
		}
		byPub[value.OctopusID] = append(byPub[value.OctopusID], r)
	}
	sort.Strings(order)

	var groups []DuplicateGroup
	for _, pubID := range order {
		recs := byPub[pubID]
		if len(recs) < 2 {
			continue
		}

		keepIdx := 0
		for i, r := range recs {
			if rkeyOf(r.URI) == record.Key(pubID) {
				keepIdx = i
				break
			}
		}

		g := DuplicateGroup{PublicationID: pubID, Keep: recs[keepIdx]}
		for i, r := range recs {
			if i != keepIdx {
				g.Delete = append(g.Delete, r)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

func rkeyOf(uri string) string {
	if ref, err := atproto.ParseURI(uri); err == nil {
		return ref.RKey
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return ""
}
