package store

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/covid19-uk/schema"
)

func TestParseCoordinatesYAML(t *testing.T) {
	ref, err := ParseCoordinatesYAML([]byte(`
Hartlepool:
  latitude: 54.6863
  longitude: -1.2129
"Bristol, City of":
  latitude: 51.4545
  longitude: -2.5879
`))
	require.NoError(t, err)
	assert.Equal(t, schema.Coordinates{
		"hartlepool":       {Latitude: 54.6863, Longitude: -1.2129},
		"bristol,_city_of": {Latitude: 51.4545, Longitude: -2.5879},
	}, ref)
}

func TestParseCoordinatesYAMLDuplicate(t *testing.T) {
	_, err := ParseCoordinatesYAML([]byte(`
Hartlepool: {latitude: 54.6863, longitude: -1.2129}
hartlepool: {latitude: 54.6863, longitude: -1.2129}
`))
	assert.True(t, errors.Is(err, ErrDuplicateCoordinate), "wrong error: %v", err)
}

func TestParseCoordinatesYAMLUnknownField(t *testing.T) {
	_, err := ParseCoordinatesYAML([]byte(`
Hartlepool: {lat: 54.6863, lng: -1.2129}
`))
	assert.True(t, errors.Is(err, ErrCoordinateFormat), "wrong error: %v", err)
}

func TestParseCoordinatesYAMLMissingField(t *testing.T) {
	for _, content := range []string{
		"Adur: {latitude: 50.8456}\n",
		"Adur: {longitude: -0.3186}\n",
		"Adur: {}\n",
	} {
		ref, err := ParseCoordinatesYAML([]byte(content))
		assert.True(t, errors.Is(err, ErrCoordinateFormat), "%q: wrong error: %v", content, err)
		assert.Nil(t, ref, content)
	}
}

func TestReadCoordinatesCSVEmptyCell(t *testing.T) {
	_, err := ReadCoordinatesCSV(strings.NewReader("area,latitude,longitude\nAdur,50.8456,\n"))
	assert.True(t, errors.Is(err, ErrCoordinateFormat), "wrong error: %v", err)

	_, err = ReadCoordinatesCSV(strings.NewReader("area,latitude,longitude\nAdur,,-0.3186\n"))
	assert.True(t, errors.Is(err, ErrCoordinateFormat), "wrong error: %v", err)
}

func TestReadCoordinatesCSV(t *testing.T) {
	ref, err := ReadCoordinatesCSV(strings.NewReader("area,latitude,longitude\nAdur,50.8456,-0.3186\n"))
	require.NoError(t, err)
	assert.Equal(t, schema.Coordinate{Latitude: 50.8456, Longitude: -0.3186}, ref["adur"])

	// the legacy headerless positional list is rejected
	_, err = ReadCoordinatesCSV(strings.NewReader("50.8456,-0.3186\n54.6863,-1.2129\n"))
	assert.True(t, errors.Is(err, ErrCoordinateFormat), "wrong error: %v", err)
}

func TestLoadCoordinates(t *testing.T) {
	dir, err := ioutil.TempDir("", "covid19-uk-coordinates")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "ltla.csv")
	require.NoError(t, ioutil.WriteFile(path, []byte("Area,Latitude,Longitude\nAdur,50.8456,-0.3186\n"), 0644))

	ref, err := LoadCoordinates(path)
	require.NoError(t, err)
	assert.Len(t, ref, 1)

	_, err = LoadCoordinates(filepath.Join(dir, "ltla.json"))
	assert.True(t, errors.Is(err, ErrCoordinateFormat))
}
