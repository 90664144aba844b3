package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/covid19-uk/schema"
)

func TestRollingAverage(t *testing.T) {
	table := seriesTable(map[string][]float64{
		"A": {10, 20, 30, 40, 50, 60, 70, 80},
	})

	out, err := RollingAverage(table, RollingOptions{Window: 7})
	require.NoError(t, err)

	assert.Equal(t, schema.DerivedTable, out.Kind)
	assert.Equal(t, 7, out.Window)

	values := metricValues(out, "A", "Cases")
	assert.Len(t, values, 8)
	for i := 0; i < 6; i++ {
		assert.Nil(t, values[i], "day %d", i+1)
	}
	assert.Equal(t, float64(40), *values[6])
	assert.Equal(t, float64(50), *values[7])

	// input untouched
	assert.Equal(t, float64(10), *table.Records[0].Metrics["Cases"])
	assert.Equal(t, schema.SeriesTable, table.Kind)
}

func TestRollingAverageDefaultWindow(t *testing.T) {
	table := seriesTable(map[string][]float64{
		"A": {1, 1, 1, 1, 1, 1, 8},
	})

	out, err := RollingAverage(table, RollingOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, out.Window)
	assert.Equal(t, float64(2), *metricValues(out, "A", "Cases")[6])
}

func TestRollingAverageInterleavedAreas(t *testing.T) {
	table := seriesTable(map[string][]float64{
		"A": {1, 2, 3, 4},
		"B": {100, 200, 300, 400},
	})

	// interleave dates and areas, newest first
	records := []schema.Record{}
	for i := 3; i >= 0; i-- {
		records = append(records, table.Records[4+i], table.Records[i])
	}
	table.Records = records

	out, err := RollingAverage(table, RollingOptions{Window: 2})
	require.NoError(t, err)
	require.Equal(t, len(table.Records), len(out.Records))

	// output keeps input order
	for i := range table.Records {
		assert.Equal(t, table.Records[i].Area, out.Records[i].Area)
		assert.Equal(t, table.Records[i].Date, out.Records[i].Date)
	}

	expected := map[string]map[int]float64{
		"A": {1: 1.5, 2: 2.5, 3: 3.5},
		"B": {1: 150, 2: 250, 3: 350},
	}
	for _, r := range out.Records {
		day := int(r.Date.Sub(day0).Hours() / 24)
		if day == 0 {
			assert.Nil(t, r.Metrics["Cases"], "%s day %d", r.Area, day)
			continue
		}
		require.NotNil(t, r.Metrics["Cases"], "%s day %d", r.Area, day)
		assert.Equal(t, expected[r.Area][day], *r.Metrics["Cases"], "%s day %d", r.Area, day)
	}
}

func TestRollingAverageNullPropagation(t *testing.T) {
	table := seriesTable(map[string][]float64{
		"A": {1, 2, 3, 4, 5},
	})
	table.Records[1].Metrics["Cases"] = nil

	out, err := RollingAverage(table, RollingOptions{Window: 2})
	require.NoError(t, err)

	values := metricValues(out, "A", "Cases")
	assert.Nil(t, values[0])
	assert.Nil(t, values[1])
	assert.Nil(t, values[2])
	assert.Equal(t, 3.5, *values[3])
	assert.Equal(t, 4.5, *values[4])
}

func TestRollingAverageShortSeries(t *testing.T) {
	table := seriesTable(map[string][]float64{
		"A": {1, 2, 3},
	})

	out, err := RollingAverage(table, RollingOptions{Window: 7})
	require.NoError(t, err)
	for _, v := range metricValues(out, "A", "Cases") {
		assert.Nil(t, v)
	}
}

func TestRollingAverageInvalidWindow(t *testing.T) {
	_, err := RollingAverage(seriesTable(map[string][]float64{"A": {1}}), RollingOptions{Window: -1})
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestRollingAverageMissingColumn(t *testing.T) {
	table := seriesTable(map[string][]float64{"A": {1, 2, 3}})

	_, err := RollingAverage(table, RollingOptions{Window: 2, Columns: []string{"Cases", "Deaths"}})
	assert.True(t, errors.Is(err, ErrColumnNotFound), "wrong error: %v", err)

	_, err = RollingAverage(table, RollingOptions{Window: 2, Columns: []string{"Date"}})
	assert.True(t, errors.Is(err, ErrColumnNotFound), "wrong error: %v", err)

	out, err := RollingAverage(table, RollingOptions{Window: 2, Columns: []string{"Cases", "Deaths"}, Missing: PolicySkip})
	require.NoError(t, err)
	assert.Len(t, out.Columns, 3)
	assert.Equal(t, 1.5, *metricValues(out, "A", "Cases")[1])

	out, err = RollingAverage(table, RollingOptions{Window: 2, Columns: []string{"Cases", "Deaths"}, Missing: PolicyNull})
	require.NoError(t, err)
	c, ok := out.Column("Deaths")
	assert.True(t, ok)
	assert.Equal(t, schema.MetricColumn, c.Kind)
	for _, r := range out.Records {
		v, ok := r.Metrics["Deaths"]
		assert.True(t, ok)
		assert.Nil(t, v)
	}
}

func TestRollingAverageSelectedColumns(t *testing.T) {
	table := seriesTable(map[string][]float64{"A": {2, 4, 6}})
	table.Columns = append(table.Columns, schema.Column{Name: "Deaths", Source: "newDeaths28DaysByPublishDate", Kind: schema.MetricColumn})
	for i := range table.Records {
		table.Records[i].Metrics["Deaths"] = schema.Float(float64(i))
	}

	out, err := RollingAverage(table, RollingOptions{Window: 2, Columns: []string{"Cases"}})
	require.NoError(t, err)

	assert.Equal(t, float64(5), *metricValues(out, "A", "Cases")[2])
	// not averaged
	assert.Equal(t, float64(2), *metricValues(out, "A", "Deaths")[2])
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":          PolicyFail,
		"abort":     PolicyFail,
		"drop":      PolicySkip,
		"Skip":      PolicySkip,
		"null-fill": PolicyNull,
	}
	for s, expected := range cases {
		p, err := ParsePolicy(s)
		assert.NoError(t, err)
		assert.Equal(t, expected, p, s)
	}

	_, err := ParsePolicy("ignore")
	assert.True(t, errors.Is(err, ErrUnknownPolicy))
}
