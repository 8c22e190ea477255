package bridge

// Key identifies one synced publication version.
type Key struct {
	PublicationID string
	VersionID     string
}

// Set is the collection of (publication id, version id) pairs already
// written. The zero value is an empty, read-only set.
type Set map[Key]struct{}

// NewSet builds a Set from keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts a pair.
func (s Set) Add(publicationID, versionID string) {
	s[Key{PublicationID: publicationID, VersionID: versionID}] = struct{}{}
}

// Has reports whether a pair is present.
func (s Set) Has(publicationID, versionID string) bool {
	_, ok := s[Key{PublicationID: publicationID, VersionID: versionID}]
	return ok
}
