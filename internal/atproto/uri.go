package atproto

import (
	"fmt"
	"strings"
)

// URIScheme prefixes every record reference.
const URIScheme = "at://"

// URI is a parsed at://<did>/<collection>/<rkey> record reference.
type URI struct {
	Repo       string
	Collection string
	RKey       string
}

// ParseURI parses a record URI. Exactly three non-empty segments must follow
// the scheme.
func ParseURI(s string) (URI, error) {
	if !strings.HasPrefix(s, URIScheme) {
		return URI{}, fmt.Errorf("%w: %q: missing %s prefix", ErrInvalidReference, s, URIScheme)
	}
	parts := strings.Split(strings.TrimPrefix(s, URIScheme), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return URI{}, fmt.Errorf("%w: %q: expected at://<repo>/<collection>/<rkey>", ErrInvalidReference, s)
	}
	return URI{Repo: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

func (u URI) String() string {
	return URIScheme + u.Repo + "/" + u.Collection + "/" + u.RKey
}
