package pipeline_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/site-classifier/internal/pipeline"
	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

var cols = pipeline.Columns{}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestKey(t *testing.T) {
	if got, want := pipeline.Key("  Acme Co ", "1 MAIN St"), pipeline.Key("acme co", "1 main st "); got != want {
		t.Fatalf("keys differ: %q vs %q", got, want)
	}
	if pipeline.Key("a b", "c") == pipeline.Key("a", "b c") {
		t.Fatalf("keys must keep company and address apart")
	}
}

func TestReadInput(t *testing.T) {
	path := writeFile(t, "in.csv", "Company Name,Full Address,Region\nAcme,1 Main St,West\n")
	in, err := pipeline.ReadInput(path, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in.Rows) != 1 || in.Rows[0].Company(cols) != "Acme" || in.Rows[0].Get("Region") != "West" {
		t.Fatalf("unexpected input: %#v", in)
	}

	if _, err := pipeline.ReadInput(writeFile(t, "bad.csv", "Company Name\nAcme\n"), cols); err == nil {
		t.Fatalf("expected missing column error")
	}
	if _, err := pipeline.ReadInput(filepath.Join(t.TempDir(), "missing.csv"), cols); err == nil {
		t.Fatalf("expected error for missing input file")
	}
}

func TestWriteOutputRoundTripsThroughCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	header := []string{"Company Name", "Full Address"}
	row := pipeline.NewRow(map[string]string{"Company Name": "Acme", "Full Address": "1 Main St"}).
		WithOutput(pipeline.Output{SiteType: "warehouse", Confidence: "high", CategorySuggestions: "warehouse; plant"})

	if err := pipeline.WriteOutput(path, header, []pipeline.Row{row}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	wantHeader := strings.Join(schema.OutputHeader(header), ",")
	if !strings.HasPrefix(string(b), wantHeader+"\n") {
		t.Fatalf("unexpected header: %q", string(b))
	}

	cache, err := pipeline.LoadCache(path, cols)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := pipeline.Key("acme", "1 main st")
	e, ok := cache.Lookup(key, "warehouse; plant")
	if !ok || e.Row.Get(schema.ColSiteType) != "warehouse" {
		t.Fatalf("expected cache hit, got %#v (ok=%v)", e, ok)
	}
	if _, ok := cache.Lookup(key, "warehouse"); ok {
		t.Fatalf("expected miss for a different signature")
	}
}

func TestLoadCache(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		c, err := pipeline.LoadCache(filepath.Join(t.TempDir(), "nope.csv"), cols)
		if err != nil || c.Len() != 0 {
			t.Fatalf("expected empty cache, got len=%d err=%v", c.Len(), err)
		}
	})

	t.Run("first row per key wins and remaining keeps order", func(t *testing.T) {
		path := writeFile(t, "out.csv", strings.Join([]string{
			"Company Name,Full Address,site_type,category_suggestions",
			"Acme,1 Main St,warehouse,",
			"ACME,1 main st,plant,",
			"Beta,2 Oak Ave,office,",
			"Gamma,3 Elm,unknown,",
		}, "\n")+"\n")
		c, err := pipeline.LoadCache(path, cols)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Len() != 3 {
			t.Fatalf("expected 3 entries, got %d", c.Len())
		}
		e, ok := c.Lookup(pipeline.Key("Acme", "1 Main St"), "")
		if !ok || e.Row.Get(schema.ColSiteType) != "warehouse" {
			t.Fatalf("unexpected entry: %#v", e)
		}
		rest := c.Remaining(map[string]struct{}{pipeline.Key("beta", "2 oak ave"): {}})
		if len(rest) != 2 || rest[0].Company(cols) != "Acme" || rest[1].Company(cols) != "Gamma" {
			t.Fatalf("unexpected remaining rows: %#v", rest)
		}
	})

	t.Run("output without identifying columns is ignored", func(t *testing.T) {
		c, err := pipeline.LoadCache(writeFile(t, "out.csv", "other\nx\n"), cols)
		if err != nil || c.Len() != 0 {
			t.Fatalf("expected empty cache, got len=%d err=%v", c.Len(), err)
		}
	})
}

func TestWithOutputDoesNotMutateSource(t *testing.T) {
	src := pipeline.NewRow(map[string]string{"Company Name": "Acme"})
	_ = src.WithOutput(pipeline.Output{SiteType: "plant"})
	if _, ok := src.Values[schema.ColSiteType]; ok {
		t.Fatalf("source row was mutated: %#v", src.Values)
	}
}
