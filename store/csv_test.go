package store

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/covid19-uk/schema"
)

func nationalTable() *schema.Table {
	d := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	return &schema.Table{
		Name: "national-daily",
		Kind: schema.SeriesTable,
		Columns: schema.ColumnsFromFields([]schema.Field{
			{Name: "Date", Source: "date"},
			{Name: "Area", Source: "areaName"},
			{Name: "Code", Source: "areaCode"},
			{Name: "Deaths", Source: "newDeaths28DaysByPublishDate"},
			{Name: "Cases", Source: "newCasesByPublishDate"},
		}),
		Records: []schema.Record{
			{
				Date:    d,
				Area:    "England",
				Metrics: map[string]*float64{"Deaths": schema.Float(120), "Cases": schema.Float(5455.5)},
				Labels:  map[string]string{"Code": "E92000001"},
			},
			{
				Date:    d.AddDate(0, 0, 1),
				Area:    "Northern Ireland, UK",
				Metrics: map[string]*float64{"Deaths": nil, "Cases": schema.Float(0.1)},
				Labels:  map[string]string{"Code": "N92000002"},
			},
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	table := nationalTable()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "Date,Area,Code,Deaths,Cases", lines[0])
	assert.Equal(t, "2021-03-01,England,E92000001,120,5455.5", lines[1])
	assert.Equal(t, `2021-03-02,"Northern Ireland, UK",N92000002,,0.1`, lines[2])

	actual, err := ReadCSV(&buf, table.Columns)
	require.NoError(t, err)
	assert.Equal(t, table.Columns, actual.Columns)
	assert.Equal(t, table.Records, actual.Records)
}

func TestReadCSVHeaderMismatch(t *testing.T) {
	table := nationalTable()
	_, err := ReadCSV(strings.NewReader("Date,Area,Code,Cases,Deaths\n"), table.Columns)
	assert.True(t, errors.Is(err, ErrHeaderMismatch), "wrong error: %v", err)
}

func TestReadCSVInvalidCell(t *testing.T) {
	table := nationalTable()
	_, err := ReadCSV(strings.NewReader("Date,Area,Code,Deaths,Cases\n2021-03-01,England,E92000001,many,1\n"), table.Columns)
	assert.True(t, errors.Is(err, ErrInvalidCell), "wrong error: %v", err)
	assert.Contains(t, err.Error(), "line 2")
}
