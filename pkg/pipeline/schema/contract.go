package schema

import (
	"strings"
)

// Output columns appended to every input row, in order.
const (
	ColSiteType            = "site_type"
	ColConfidence          = "confidence"
	ColNotes               = "notes"
	ColRawModelOutput      = "raw_model_output"
	ColQueryPlan           = "query_plan"
	ColEvidenceSummary     = "evidence_summary"
	ColCategorySuggestions = "category_suggestions"
)

// ExtraColumns returns the appended output columns in their stable order.
func ExtraColumns() []string {
	return []string{
		ColSiteType,
		ColConfidence,
		ColNotes,
		ColRawModelOutput,
		ColQueryPlan,
		ColEvidenceSummary,
		ColCategorySuggestions,
	}
}

// OutputHeader keeps the input columns first and appends each extra column
// that the input does not already have.
func OutputHeader(input []string) []string {
	out := make([]string, 0, len(input)+len(ExtraColumns()))
	have := make(map[string]struct{}, len(input))
	for _, col := range input {
		out = append(out, col)
		have[strings.TrimSpace(col)] = struct{}{}
	}
	for _, col := range ExtraColumns() {
		if _, ok := have[col]; !ok {
			out = append(out, col)
		}
	}
	return out
}

// MissingColumns returns the required columns absent from header. Column
// names are compared after trimming.
func MissingColumns(header []string, required ...string) []string {
	have := make(map[string]struct{}, len(header))
	for _, col := range header {
		have[strings.TrimSpace(col)] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := have[strings.TrimSpace(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
