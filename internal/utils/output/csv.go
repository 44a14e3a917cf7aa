package output

import (
	"encoding/csv"
	"io"

	"github.com/law-makers/plancrawl/pkg/models"
)

// writeCSV writes one row per record under a header of every key seen.
func writeCSV(w io.Writer, records []models.Record) error {
	writer := csv.NewWriter(w)
	cols := header(records)
	if len(cols) > 0 {
		if err := writer.Write(cols); err != nil {
			return err
		}
	}
	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = Value(r[c])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
