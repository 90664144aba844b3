package schema

import (
	"sort"
	"time"
)

// DateLayout - calendar date format used by the api and the csv files
const DateLayout = "2006-01-02"

// TableKind - what a table represents
type TableKind string

const (
	SeriesTable   TableKind = "series"
	SnapshotTable TableKind = "snapshot"
	DerivedTable  TableKind = "derived"
)

// Record - one row of a table.
// Metrics are keyed by column name, a nil value means not yet published.
type Record struct {
	Date    time.Time           `json:"date,omitempty" bson:"date,omitempty"`
	Area    string              `json:"area,omitempty" bson:"area"`
	Metrics map[string]*float64 `json:"metrics" bson:"metrics"`
	Labels  map[string]string   `json:"labels,omitempty" bson:"labels,omitempty"`
}

// Metric - value of a metric column, nil when absent
func (r Record) Metric(name string) *float64 {
	return r.Metrics[name]
}

// Clone - copy of the record with its own maps. Metric values are shared, they are
// never written through.
func (r Record) Clone() Record {
	c := Record{
		Date:    r.Date,
		Area:    r.Area,
		Metrics: make(map[string]*float64, len(r.Metrics)),
	}
	for k, v := range r.Metrics {
		c.Metrics[k] = v
	}
	if r.Labels != nil {
		c.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			c.Labels[k] = v
		}
	}
	return c
}

// Table - a flat table produced by ingestion or by a transform
type Table struct {
	Name    string    `json:"name"`
	Kind    TableKind `json:"kind"`
	Window  int       `json:"window,omitempty"`
	Columns []Column  `json:"columns"`
	Records []Record  `json:"records"`
}

// Column - look up a column by name
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnsOfKind - names of the columns of one kind, in table order
func (t *Table) ColumnsOfKind(kind ColumnKind) []string {
	names := []string{}
	for _, c := range t.Columns {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return names
}

// Len - number of records
func (t *Table) Len() int {
	return len(t.Records)
}

// Areas - distinct area names in first seen order
func (t *Table) Areas() []string {
	seen := make(map[string]struct{})
	areas := []string{}
	for _, r := range t.Records {
		if _, ok := seen[r.Area]; ok {
			continue
		}
		seen[r.Area] = struct{}{}
		areas = append(areas, r.Area)
	}
	return areas
}

// Clone - deep copy of the table structure
func (t *Table) Clone() *Table {
	c := &Table{
		Name:    t.Name,
		Kind:    t.Kind,
		Window:  t.Window,
		Columns: make([]Column, len(t.Columns)),
		Records: make([]Record, len(t.Records)),
	}
	copy(c.Columns, t.Columns)
	for i, r := range t.Records {
		c.Records[i] = r.Clone()
	}
	return c
}

// SortByAreaDate - order records by area, then date ascending
func (t *Table) SortByAreaDate() {
	sort.SliceStable(t.Records, func(i, j int) bool {
		if t.Records[i].Area != t.Records[j].Area {
			return t.Records[i].Area < t.Records[j].Area
		}
		return t.Records[i].Date.Before(t.Records[j].Date)
	})
}

// Float - helper to take the address of a literal metric value
func Float(v float64) *float64 {
	return &v
}
