package octopus

import (
	"strconv"
	"strings"
)

// RawPublication is an undecoded publication object as returned by the API.
// Octopus has served several shapes over time, so fields are looked up
// through Fields rather than decoded into a fixed struct.
type RawPublication map[string]any

// Fields provides typed, nil-safe lookups over a decoded JSON object.
type Fields map[string]any

// String returns the first key holding a non-empty string or a number.
func (f Fields) String(keys ...string) string {
	for _, k := range keys {
		if s := scalarString(f[k]); s != "" {
			return s
		}
	}
	return ""
}

// Object returns the first key holding a JSON object.
func (f Fields) Object(keys ...string) Fields {
	for _, k := range keys {
		if m, ok := f[k].(map[string]any); ok && len(m) > 0 {
			return Fields(m)
		}
	}
	return nil
}

// List returns the first key holding a non-empty JSON array.
func (f Fields) List(keys ...string) []any {
	for _, k := range keys {
		if l, ok := f[k].([]any); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

// Value returns the first key holding anything other than null, false,
// an empty string or an empty container.
func (f Fields) Value(keys ...string) any {
	for _, k := range keys {
		if present(f[k]) {
			return f[k]
		}
	}
	return nil
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	case float64:
		return x != 0
	}
	return true
}

// scalarString renders strings and JSON numbers; everything else is "".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

// Publication is the normalized view of one publication and its current version.
type Publication struct {
	ID          string
	VersionID   string
	Publication Fields
	Version     Fields
	LinkedTo    []string
	LinkedFrom  []string
}

// Normalize resolves the nested and flat response shapes into a Publication.
// It never fails: missing pieces come back empty.
//
// The publication object is taken from "publication", then
// "publicationData", then the item itself; the version object from
// "latestVersion", then "publicationVersion", then the item itself.
func Normalize(raw RawPublication) Publication {
	item := Fields(raw)
	if item == nil {
		item = Fields{}
	}

	pub := item.Object("publication", "publicationData")
	if pub == nil {
		pub = item
	}
	version := item.Object("latestVersion", "publicationVersion")
	if version == nil {
		version = item
	}

	linked := item.Object("linked")
	return Publication{
		ID:          pub.String("id"),
		VersionID:   version.String("id"),
		Publication: pub,
		Version:     version,
		LinkedTo:    linkedIDs(linked, "linkedTo"),
		LinkedFrom:  linkedIDs(linked, "linkedFrom"),
	}
}

// linkedIDs extracts the "id" of every object in linked[key]. Plain string
// entries are accepted as ids.
func linkedIDs(linked Fields, key string) []string {
	ids := []string{}
	for _, entry := range linked.List(key) {
		switch v := entry.(type) {
		case map[string]any:
			if id := Fields(v).String("id"); id != "" {
				ids = append(ids, id)
			}
		case string:
			if v = strings.TrimSpace(v); v != "" {
				ids = append(ids, v)
			}
		}
	}
	return ids
}

// SelectVersion picks the entry of detail["versions"] whose id matches
// versionID, falling back to the first version, then to an empty object.
func SelectVersion(detail RawPublication, versionID string) Fields {
	var first Fields
	for _, v := range Fields(detail).List("versions") {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		f := Fields(m)
		if first == nil {
			first = f
		}
		if f.String("id") == versionID {
			return f
		}
	}
	if first == nil {
		return Fields{}
	}
	return first
}
