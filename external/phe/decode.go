package phe

import (
	"fmt"
	"time"

	"github.com/bitmark-inc/covid19-uk/schema"
)

// decodeRecord - convert one api object into a record following the table columns
func decodeRecord(raw map[string]interface{}, columns []schema.Column) (schema.Record, error) {
	record := schema.Record{
		Metrics: make(map[string]*float64),
	}

	for _, col := range columns {
		value, ok := raw[col.Name]
		if !ok {
			return record, fmt.Errorf("%w: field %q (%s) missing", ErrSchemaMismatch, col.Name, col.Source)
		}

		switch col.Kind {
		case schema.DateColumn:
			s, ok := value.(string)
			if !ok {
				return record, fmt.Errorf("%w: field %q is not a date string", ErrSchemaMismatch, col.Name)
			}
			d, err := time.ParseInLocation(schema.DateLayout, s, time.UTC)
			if nil != err {
				return record, fmt.Errorf("%w: field %q: %s", ErrSchemaMismatch, col.Name, err)
			}
			record.Date = d
		case schema.AreaColumn:
			s, ok := value.(string)
			if !ok {
				return record, fmt.Errorf("%w: field %q is not a string", ErrSchemaMismatch, col.Name)
			}
			record.Area = s
		case schema.TextColumn:
			if value == nil {
				continue
			}
			s, ok := value.(string)
			if !ok {
				return record, fmt.Errorf("%w: field %q is not a string", ErrSchemaMismatch, col.Name)
			}
			if record.Labels == nil {
				record.Labels = make(map[string]string)
			}
			record.Labels[col.Name] = s
		default:
			if value == nil {
				record.Metrics[col.Name] = nil
				continue
			}
			f, ok := value.(float64)
			if !ok {
				return record, fmt.Errorf("%w: field %q is not numeric", ErrSchemaMismatch, col.Name)
			}
			record.Metrics[col.Name] = schema.Float(f)
		}
	}

	return record, nil
}

// checkUnique - (date, area) is unique in a series, area is unique in a snapshot
func checkUnique(t *schema.Table) error {
	seen := make(map[string]struct{}, len(t.Records))
	for _, r := range t.Records {
		key := r.Area
		if t.Kind == schema.SeriesTable {
			key = r.Area + "|" + r.Date.Format(schema.DateLayout)
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate record for %s", ErrSchemaMismatch, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
