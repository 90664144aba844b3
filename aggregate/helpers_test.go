package aggregate

import (
	"time"

	"github.com/bitmark-inc/covid19-uk/schema"
)

var day0 = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func seriesTable(values map[string][]float64) *schema.Table {
	t := &schema.Table{
		Name: "test",
		Kind: schema.SeriesTable,
		Columns: []schema.Column{
			{Name: "Date", Source: "date", Kind: schema.DateColumn},
			{Name: "Area", Source: "areaName", Kind: schema.AreaColumn},
			{Name: "Cases", Source: "newCasesByPublishDate", Kind: schema.MetricColumn},
		},
	}
	for area, vs := range values {
		for i, v := range vs {
			t.Records = append(t.Records, schema.Record{
				Date:    day0.AddDate(0, 0, i),
				Area:    area,
				Metrics: map[string]*float64{"Cases": schema.Float(v)},
			})
		}
	}
	t.SortByAreaDate()
	return t
}

func metricValues(t *schema.Table, area, column string) []*float64 {
	values := []*float64{}
	for _, r := range t.Records {
		if r.Area == area {
			values = append(values, r.Metrics[column])
		}
	}
	return values
}
