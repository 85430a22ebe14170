package pipeline

import (
	"github.com/rotisserie/eris"

	localio "github.com/shpitdev/site-classifier/pkg/pipeline/io/local"
	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

// Input is a parsed input CSV.
type Input struct {
	Header []string
	Rows   []Row
}

// ReadInput reads the input CSV. Both identifying columns must be present.
func ReadInput(path string, cols Columns) (Input, error) {
	cols = cols.withDefaults()
	t, err := localio.ReadTableFile(path, cols.Company, cols.Address)
	if err != nil {
		return Input{}, eris.Wrap(err, "read input")
	}
	rows := make([]Row, 0, len(t.Records))
	for _, rec := range t.Records {
		rows = append(rows, Row{Values: rec})
	}
	return Input{Header: t.Header, Rows: rows}, nil
}

// WriteOutput atomically writes rows under the output header derived from
// the input header.
func WriteOutput(path string, inputHeader []string, rows []Row) error {
	t := localio.Table{
		Header:  schema.OutputHeader(inputHeader),
		Records: make([]map[string]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Records = append(t.Records, r.Values)
	}
	if err := localio.WriteTableFileAtomic(path, t); err != nil {
		return eris.Wrapf(err, "write output %s", path)
	}
	return nil
}
