package research

import (
	"strings"
)

// Facility-type terms added to queries when a collection runs expanded.
var expansionTerms = []string{
	"warehouse distribution center",
	"manufacturing plant",
	"headquarters office",
	"permit zoning",
}

// BuildQueries returns the heuristic baseline queries for a company/address
// pair: the quoted combination, a facility variant, and with expanded set the
// facility-type variants.
func BuildQueries(company, address string, expanded bool) []string {
	company = strings.TrimSpace(company)
	address = strings.TrimSpace(address)
	if company == "" && address == "" {
		return nil
	}

	street := strings.TrimSpace(strings.Split(address, ",")[0])
	queries := []string{quoteJoin(company, address)}
	switch {
	case company != "" && address != "":
		queries = append(queries, quoteJoin(company, street)+" facility")
	case company != "":
		queries = append(queries, quoteJoin(company)+" facility types")
	default:
		queries = append(queries, quoteJoin(address)+" facility")
	}

	if expanded {
		subject := quoteJoin(company, street)
		if company == "" {
			subject = quoteJoin(address)
		}
		for _, term := range expansionTerms {
			queries = append(queries, subject+" "+term)
		}
		if company != "" && address != "" {
			queries = append(queries, quoteJoin(address)+" tenant")
		}
	}
	return dedupeQueries(queries)
}

func quoteJoin(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return strings.Join(quoted, " ")
}

func dedupeQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
