package aggregate

import (
	"fmt"

	"github.com/bitmark-inc/covid19-uk/schema"
)

// Select - projection of a table on the named columns, in the given order.
// Rows stay aligned one for one with the input.
func Select(t *schema.Table, names ...string) (*schema.Table, error) {
	out := &schema.Table{
		Name:    t.Name,
		Kind:    t.Kind,
		Window:  t.Window,
		Columns: make([]schema.Column, 0, len(names)),
		Records: make([]schema.Record, len(t.Records)),
	}

	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in table %q", ErrColumnNotFound, name, t.Name)
		}
		out.Columns = append(out.Columns, c)
	}

	for i, r := range t.Records {
		record := schema.Record{Metrics: make(map[string]*float64)}
		for _, c := range out.Columns {
			switch c.Kind {
			case schema.DateColumn:
				record.Date = r.Date
			case schema.AreaColumn:
				record.Area = r.Area
			case schema.TextColumn:
				if v, ok := r.Labels[c.Name]; ok {
					if record.Labels == nil {
						record.Labels = make(map[string]string)
					}
					record.Labels[c.Name] = v
				}
			default:
				record.Metrics[c.Name] = r.Metrics[c.Name]
			}
		}
		out.Records[i] = record
	}

	return out, nil
}

// AlignRates - area, raw metric and its upstream per 100,000 rate, one row per area.
// The rate is provided by the source, nothing is computed.
func AlignRates(t *schema.Table, metric, rate string) (*schema.Table, error) {
	areas := t.ColumnsOfKind(schema.AreaColumn)
	if len(areas) == 0 {
		return nil, fmt.Errorf("%w: no area column in table %q", ErrColumnNotFound, t.Name)
	}

	for _, name := range []string{metric, rate} {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in table %q", ErrColumnNotFound, name, t.Name)
		}
		if c.Kind != schema.MetricColumn {
			return nil, fmt.Errorf("%w: %q is a %s column", ErrColumnNotFound, name, c.Kind)
		}
	}

	seen := make(map[string]struct{}, len(t.Records))
	for _, r := range t.Records {
		if _, ok := seen[r.Area]; ok {
			return nil, fmt.Errorf("%w: %q in table %q", ErrDuplicateArea, r.Area, t.Name)
		}
		seen[r.Area] = struct{}{}
	}

	return Select(t, areas[0], metric, rate)
}
