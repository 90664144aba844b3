package aggregate

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/covid19-uk/schema"
)

// RollingOptions - parameters of a rolling average
type RollingOptions struct {
	// Window - number of consecutive rows per area, 0 means DefaultWindow
	Window int
	// Columns - metric columns to average, empty means every metric column
	Columns []string
	// Missing - policy for a requested column absent from the table
	Missing Policy
}

// RollingAverage - replace metric columns by their trailing mean over a window of rows,
// per area, in date order. The first window-1 rows of an area are nil, and so is any
// window containing a nil value. Output rows keep the input order.
func RollingAverage(t *schema.Table, opts RollingOptions) (*schema.Table, error) {
	window := opts.Window
	if window == 0 {
		window = DefaultWindow
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}

	columns, nullColumns, err := rollingColumns(t, opts)
	if nil != err {
		return nil, err
	}

	out := t.Clone()
	out.Kind = schema.DerivedTable
	out.Window = window

	for _, group := range groupByArea(t) {
		for _, col := range columns {
			values := make([]*float64, len(group))
			for i, idx := range group {
				values[i] = t.Records[idx].Metrics[col]
			}
			averaged := trailingMean(values, window)
			for i, idx := range group {
				out.Records[idx].Metrics[col] = averaged[i]
			}
		}
	}

	for _, col := range nullColumns {
		out.Columns = append(out.Columns, schema.Column{Name: col, Kind: schema.MetricColumn})
		for i := range out.Records {
			out.Records[i].Metrics[col] = nil
		}
	}

	return out, nil
}

// rollingColumns - resolve the requested columns against the table
func rollingColumns(t *schema.Table, opts RollingOptions) ([]string, []string, error) {
	if len(opts.Columns) == 0 {
		return t.ColumnsOfKind(schema.MetricColumn), nil, nil
	}

	var columns, nullColumns []string
	for _, name := range opts.Columns {
		c, ok := t.Column(name)
		if ok && c.Kind == schema.MetricColumn {
			columns = append(columns, name)
			continue
		}

		if ok {
			return nil, nil, fmt.Errorf("%w: %q is a %s column", ErrColumnNotFound, name, c.Kind)
		}

		switch opts.Missing {
		case PolicySkip:
			log.WithFields(log.Fields{"prefix": logPrefix, "table": t.Name, "column": name}).Warn("skip missing rolling column")
		case PolicyNull:
			log.WithFields(log.Fields{"prefix": logPrefix, "table": t.Name, "column": name}).Warn("null fill missing rolling column")
			nullColumns = append(nullColumns, name)
		default:
			return nil, nil, fmt.Errorf("%w: %q in table %q", ErrColumnNotFound, name, t.Name)
		}
	}
	return columns, nullColumns, nil
}

// groupByArea - record indexes per area, each group in date order
func groupByArea(t *schema.Table) [][]int {
	index := make(map[string]int)
	groups := [][]int{}
	for i, r := range t.Records {
		g, ok := index[r.Area]
		if !ok {
			g = len(groups)
			index[r.Area] = g
			groups = append(groups, []int{})
		}
		groups[g] = append(groups[g], i)
	}

	for _, g := range groups {
		group := g
		sort.SliceStable(group, func(i, j int) bool {
			return t.Records[group[i]].Date.Before(t.Records[group[j]].Date)
		})
	}
	return groups
}

// trailingMean - simple moving average, nil until the window is full or when the window
// holds a nil value
func trailingMean(values []*float64, window int) []*float64 {
	result := make([]*float64, len(values))
	for i := window - 1; i < len(values); i++ {
		sum := float64(0)
		complete := true
		for _, v := range values[i-window+1 : i+1] {
			if v == nil {
				complete = false
				break
			}
			sum += *v
		}
		if complete {
			result[i] = schema.Float(sum / float64(window))
		}
	}
	return result
}
