package schema

const (
	SeriesCollection  = "series"
	DatasetCollection = "dataset"
)

// SeriesDocument - one table row stored in mongodb, unique by (dataset, area, date).
// Date is empty for snapshot rows.
type SeriesDocument struct {
	Dataset  string              `bson:"dataset"`
	Area     string              `bson:"area"`
	Date     string              `bson:"date"`
	Metrics  map[string]*float64 `bson:"metrics"`
	Labels   map[string]string   `bson:"labels,omitempty"`
	RunID    string              `bson:"run_id"`
	UpdateTS int64               `bson:"update_ts"`
}

// DatasetDocument - table metadata of the latest run that wrote a dataset
type DatasetDocument struct {
	Name      string    `bson:"name"`
	Kind      TableKind `bson:"kind"`
	Window    int       `bson:"window"`
	Columns   []Column  `bson:"columns"`
	Rows      int       `bson:"rows"`
	RunID     string    `bson:"run_id"`
	ReleaseTS int64     `bson:"release_ts"`
	UpdateTS  int64     `bson:"update_ts"`
}
