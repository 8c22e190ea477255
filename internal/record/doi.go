package record

import (
	"regexp"
	"strings"
)

// doiPattern matches a bare DOI anywhere in a string.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// DOIResolver is the resolver prefix used for normalized DOIs.
const DOIResolver = "https://doi.org/"

// NormalizeDOI converts "10.x/y", "doi:10.x/y" and dx.doi.org links into
// https://doi.org/10.x/y. Values that do not contain a DOI are returned trimmed
// but otherwise unchanged.
func NormalizeDOI(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	doi := doiPattern.FindString(value)
	if doi == "" {
		return value
	}
	doi = strings.TrimRight(doi, ".,;:)")
	if !isValidDOI(doi) {
		return value
	}
	return DOIResolver + doi
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 {
		return false
	}
	if !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}
