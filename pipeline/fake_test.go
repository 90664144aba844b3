package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitmark-inc/covid19-uk/external/phe"
	"github.com/bitmark-inc/covid19-uk/schema"
)

var day0 = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

// fakeSource - tables served by area type, built from the requested fields
type fakeSource struct {
	mu      sync.Mutex
	release time.Time
	rows    map[schema.AreaType][]schema.Record
	failing map[schema.AreaType]bool
	queries []schema.Query
}

func (f *fakeSource) Fetch(ctx context.Context, q schema.Query) (*schema.Table, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.failing[q.AreaType] {
		return nil, fmt.Errorf("%w: status 503", phe.ErrSourceUnavailable)
	}

	t := &schema.Table{
		Kind:    schema.SeriesTable,
		Columns: schema.ColumnsFromFields(q.Fields),
		Records: []schema.Record{},
	}
	if q.LatestBy != "" {
		t.Kind = schema.SnapshotTable
	}
	for _, r := range f.rows[q.AreaType] {
		t.Records = append(t.Records, r.Clone())
	}
	return t, nil
}

func (f *fakeSource) ReleaseTimestamp(ctx context.Context) (time.Time, error) {
	return f.release, nil
}

// nationalRows - ten days for England and Wales, Wales missing its day 9 tests
func nationalRows() []schema.Record {
	records := []schema.Record{}
	for i := 1; i <= 10; i++ {
		records = append(records, schema.Record{
			Date: day0.AddDate(0, 0, i-1),
			Area: "England",
			Metrics: map[string]*float64{
				"Deaths": schema.Float(float64(10 * i)),
				"Cases":  schema.Float(float64(100 * i)),
				"Tests":  schema.Float(float64(1000 + i)),
			},
		})
	}
	for i := 1; i <= 10; i++ {
		tests := schema.Float(500)
		if i == 9 {
			tests = nil
		}
		records = append(records, schema.Record{
			Date: day0.AddDate(0, 0, i-1),
			Area: "Wales",
			Metrics: map[string]*float64{
				"Deaths": schema.Float(float64(i)),
				"Cases":  schema.Float(float64(2 * i)),
				"Tests":  tests,
			},
		})
	}
	return records
}

func ltlaRows() []schema.Record {
	return []schema.Record{
		{Area: "Adur", Metrics: map[string]*float64{"Cases": schema.Float(3512), "Rate": schema.Float(5452.1)}},
		{Area: "Hartlepool", Metrics: map[string]*float64{"Cases": schema.Float(8760), "Rate": schema.Float(9345.6)}},
		{Area: "Nowhere", Metrics: map[string]*float64{"Cases": schema.Float(1), "Rate": schema.Float(2)}},
	}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		release: time.Date(2021, 3, 10, 15, 30, 0, 0, time.UTC),
		rows: map[schema.AreaType][]schema.Record{
			schema.AreaNation: nationalRows(),
			schema.AreaLTLA:   ltlaRows(),
		},
		failing: map[schema.AreaType]bool{},
	}
}

// testReference - coordinates of the ltla fixture except Nowhere
func testReference() schema.Coordinates {
	return schema.Coordinates{
		"adur":       {Latitude: 50.8456, Longitude: -0.3186},
		"hartlepool": {Latitude: 54.6863, Longitude: -1.2129},
	}
}
