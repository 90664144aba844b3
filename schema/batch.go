package schema

import "time"

// Batch - every table produced by one pipeline run, in pipeline order
type Batch struct {
	RunID   string    `json:"run_id"`
	Release time.Time `json:"release"`
	Tables  []*Table  `json:"tables"`
}

// Table - look up a table by name, nil when absent
func (b *Batch) Table(name string) *Table {
	for _, t := range b.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Names - table names in pipeline order
func (b *Batch) Names() []string {
	names := make([]string, len(b.Tables))
	for i, t := range b.Tables {
		names[i] = t.Name
	}
	return names
}
