package classify

import "strings"

// Phrases in notes that mark a verdict as lacking evidence.
var inconclusivePhrases = []string{
	"insufficient evidence",
	"not enough evidence",
	"no evidence",
	"no supporting evidence",
	"limited evidence",
	"insufficient information",
	"not enough information",
	"unable to determine",
	"cannot determine",
	"could not determine",
	"inconclusive",
	"model did not return valid json",
}

// IsInconclusive reports whether a verdict should trigger a wider evidence
// pass: no site type, an "unknown" site type, or notes admitting missing evidence.
func IsInconclusive(r Result) bool {
	siteType := strings.ToLower(strings.TrimSpace(r.SiteType))
	if siteType == "" || siteType == "unknown" {
		return true
	}
	notes := strings.ToLower(r.Notes)
	for _, p := range inconclusivePhrases {
		if strings.Contains(notes, p) {
			return true
		}
	}
	return false
}
