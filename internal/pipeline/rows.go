package pipeline

import (
	"strings"

	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

const (
	DefaultCompanyColumn = "Company Name"
	DefaultAddressColumn = "Full Address"
)

// Columns names the input columns that identify a site.
type Columns struct {
	Company string
	Address string
}

func (c Columns) withDefaults() Columns {
	if strings.TrimSpace(c.Company) == "" {
		c.Company = DefaultCompanyColumn
	}
	if strings.TrimSpace(c.Address) == "" {
		c.Address = DefaultAddressColumn
	}
	return c
}

// Row is one CSV record keyed by column name.
type Row struct {
	Values map[string]string
}

// NewRow copies values so later edits to the source map do not leak in.
func NewRow(values map[string]string) Row {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Row{Values: cp}
}

func (r Row) Get(col string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[col]
}

// Company returns the trimmed company value.
func (r Row) Company(cols Columns) string {
	return strings.TrimSpace(r.Get(cols.withDefaults().Company))
}

// Address returns the trimmed address value.
func (r Row) Address(cols Columns) string {
	return strings.TrimSpace(r.Get(cols.withDefaults().Address))
}

func (r Row) Key(cols Columns) string {
	return Key(r.Company(cols), r.Address(cols))
}

// Key is the cache key of a site: case-insensitive, whitespace-trimmed
// company and address joined by a unit separator.
func Key(company, address string) string {
	return strings.ToLower(strings.TrimSpace(company)) + "\x1f" + strings.ToLower(strings.TrimSpace(address))
}

// Output holds the appended columns for one classified row.
type Output struct {
	SiteType            string
	Confidence          string
	Notes               string
	RawModelOutput      string
	QueryPlan           string
	EvidenceSummary     string
	CategorySuggestions string
}

// WithOutput returns a copy of r with the output columns set.
func (r Row) WithOutput(o Output) Row {
	out := NewRow(r.Values)
	out.Values[schema.ColSiteType] = o.SiteType
	out.Values[schema.ColConfidence] = o.Confidence
	out.Values[schema.ColNotes] = o.Notes
	out.Values[schema.ColRawModelOutput] = o.RawModelOutput
	out.Values[schema.ColQueryPlan] = o.QueryPlan
	out.Values[schema.ColEvidenceSummary] = o.EvidenceSummary
	out.Values[schema.ColCategorySuggestions] = o.CategorySuggestions
	return out
}

// Signature is the category signature the row was classified under.
func (r Row) Signature() string {
	return r.Get(schema.ColCategorySuggestions)
}
