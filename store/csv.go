package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bitmark-inc/covid19-uk/schema"
)

var (
	ErrHeaderMismatch = fmt.Errorf("csv header does not match columns")
	ErrInvalidCell    = fmt.Errorf("invalid csv cell")
)

// WriteCSV - write a table with a header of its column names. A nil metric is an empty
// cell.
func WriteCSV(w io.Writer, t *schema.Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(t.Columns))
	for _, r := range t.Records {
		for i, c := range t.Columns {
			row[i] = formatCell(r, c)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV - read a table written by WriteCSV, the header must match the column names
func ReadCSV(r io.Reader, columns []schema.Column) (*schema.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHeaderMismatch, err)
	}
	for i, c := range columns {
		if header[i] != c.Name {
			return nil, fmt.Errorf("%w: column %d is %q, expect %q", ErrHeaderMismatch, i, header[i], c.Name)
		}
	}

	t := &schema.Table{
		Columns: make([]schema.Column, len(columns)),
		Records: []schema.Record{},
	}
	copy(t.Columns, columns)

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		record := schema.Record{Metrics: make(map[string]*float64)}
		for i, c := range columns {
			if err := parseCell(&record, c, row[i]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		t.Records = append(t.Records, record)
	}

	return t, nil
}

func formatCell(r schema.Record, c schema.Column) string {
	switch c.Kind {
	case schema.DateColumn:
		if r.Date.IsZero() {
			return ""
		}
		return r.Date.Format(schema.DateLayout)
	case schema.AreaColumn:
		return r.Area
	case schema.TextColumn:
		return r.Labels[c.Name]
	default:
		v := r.Metrics[c.Name]
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
}

func parseCell(record *schema.Record, c schema.Column, cell string) error {
	switch c.Kind {
	case schema.DateColumn:
		if cell == "" {
			return nil
		}
		d, err := time.ParseInLocation(schema.DateLayout, cell, time.UTC)
		if err != nil {
			return fmt.Errorf("%w: %q: %s", ErrInvalidCell, c.Name, err)
		}
		record.Date = d
	case schema.AreaColumn:
		record.Area = cell
	case schema.TextColumn:
		if cell == "" {
			return nil
		}
		if record.Labels == nil {
			record.Labels = make(map[string]string)
		}
		record.Labels[c.Name] = cell
	default:
		if cell == "" {
			record.Metrics[c.Name] = nil
			return nil
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return fmt.Errorf("%w: %q: %s", ErrInvalidCell, c.Name, err)
		}
		record.Metrics[c.Name] = &v
	}
	return nil
}
