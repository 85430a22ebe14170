package schema_test

import (
	"slices"
	"testing"

	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

func TestOutputHeader(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "appends extras",
			in:   []string{"Company Name", "Full Address"},
			want: append([]string{"Company Name", "Full Address"}, schema.ExtraColumns()...),
		},
		{
			name: "does not duplicate existing extras",
			in:   []string{"Company Name", "notes", "Full Address"},
			want: []string{"Company Name", "notes", "Full Address", "site_type", "confidence", "raw_model_output", "query_plan", "evidence_summary", "category_suggestions"},
		},
		{
			name: "empty input",
			in:   nil,
			want: schema.ExtraColumns(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schema.OutputHeader(tt.in); !slices.Equal(got, tt.want) {
				t.Fatalf("OutputHeader(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMissingColumns(t *testing.T) {
	got := schema.MissingColumns([]string{" Company Name ", "city"}, "Company Name", "Full Address")
	if !slices.Equal(got, []string{"Full Address"}) {
		t.Fatalf("unexpected missing columns: %q", got)
	}
	if got := schema.MissingColumns([]string{"a"}, "a"); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}
