package local_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/site-classifier/pkg/pipeline/io/local"
)

func TestReadTable(t *testing.T) {
	t.Run("reads records by column", func(t *testing.T) {
		in := "Company Name,Full Address,extra\nAcme Co,\"1 Main St, Springfield\",x\nBeta,2 Oak Ave\n"
		got, err := local.ReadTable(strings.NewReader(in), "Company Name", "Full Address")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Header) != 3 || len(got.Records) != 2 {
			t.Fatalf("unexpected table: %#v", got)
		}
		if got.Records[0]["Full Address"] != "1 Main St, Springfield" {
			t.Fatalf("unexpected address: %q", got.Records[0]["Full Address"])
		}
		if v, ok := got.Records[1]["extra"]; !ok || v != "" {
			t.Fatalf("short record should leave trailing column empty, got %q (present=%v)", v, ok)
		}
	})

	t.Run("trims header and byte order mark", func(t *testing.T) {
		for _, in := range []string{
			"\ufeff Company Name ,Full Address\nAcme,1 Main St\n",
			"\ufeffCompany Name,Full Address\nAcme,1 Main St\n",
		} {
			got, err := local.ReadTable(strings.NewReader(in), "Company Name", "Full Address")
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", in, err)
			}
			if got.Header[0] != "Company Name" || got.Records[0]["Company Name"] != "Acme" {
				t.Fatalf("unexpected header %q / record %#v", got.Header, got.Records[0])
			}
		}
	})

	t.Run("missing required column errors", func(t *testing.T) {
		_, err := local.ReadTable(strings.NewReader("Company Name\nAcme\n"), "Company Name", "Full Address")
		if err == nil || !strings.Contains(err.Error(), "Full Address") {
			t.Fatalf("expected missing column error, got %v", err)
		}
	})

	t.Run("empty input errors", func(t *testing.T) {
		if _, err := local.ReadTable(strings.NewReader("")); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := local.WriteTable(&buf, local.Table{
		Header:  []string{"Company Name", "notes"},
		Records: []map[string]string{{"Company Name": "Acme", "notes": "has, comma"}, {"Company Name": "Beta"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Company Name,notes\nAcme,\"has, comma\"\nBeta,\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv: %q", buf.String())
	}
}

func TestWriteTableFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "enriched.csv")
	tbl := local.Table{Header: []string{"a"}, Records: []map[string]string{{"a": "1"}}}

	if err := local.WriteTableFileAtomic(path, tbl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tbl.Records = append(tbl.Records, map[string]string{"a": "2"})
	if err := local.WriteTableFileAtomic(path, tbl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := local.ReadTableFile(path, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got.Records))
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}
