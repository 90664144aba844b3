package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/covid19-uk/schema"
)

func TestAlignRates(t *testing.T) {
	table := snapshotTable()
	table.Columns = append(table.Columns, schema.Column{Name: "Code", Source: "areaCode", Kind: schema.TextColumn})

	out, err := AlignRates(table, "Cases", "Rate")
	require.NoError(t, err)

	assert.Equal(t, []string{"Area", "Cases", "Rate"}, []string{out.Columns[0].Name, out.Columns[1].Name, out.Columns[2].Name})
	require.Equal(t, table.Len(), out.Len())
	for i, r := range out.Records {
		assert.Equal(t, table.Records[i].Area, r.Area)
		assert.Equal(t, *table.Records[i].Metrics["Cases"], *r.Metrics["Cases"])
		assert.Equal(t, *table.Records[i].Metrics["Rate"], *r.Metrics["Rate"])
	}
}

func TestAlignRatesMissingColumn(t *testing.T) {
	_, err := AlignRates(snapshotTable(), "Cases", "Rate per 100k")
	assert.True(t, errors.Is(err, ErrColumnNotFound), "wrong error: %v", err)

	_, err = AlignRates(snapshotTable(), "Area", "Rate")
	assert.True(t, errors.Is(err, ErrColumnNotFound), "wrong error: %v", err)
}

func TestAlignRatesDuplicateArea(t *testing.T) {
	table := snapshotTable()
	table.Records = append(table.Records, table.Records[0])

	_, err := AlignRates(table, "Cases", "Rate")
	assert.True(t, errors.Is(err, ErrDuplicateArea), "wrong error: %v", err)
}

func TestSelect(t *testing.T) {
	out, err := Select(snapshotTable(), "Rate", "Area")
	require.NoError(t, err)
	assert.Equal(t, "Rate", out.Columns[0].Name)
	assert.Equal(t, "Adur", out.Records[0].Area)
	_, ok := out.Records[0].Metrics["Cases"]
	assert.False(t, ok)

	_, err = Select(snapshotTable(), "Deaths")
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}
