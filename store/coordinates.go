package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/utils"
)

// coordinateEntry - one yaml reference entry, both fields are required
type coordinateEntry struct {
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

var (
	ErrDuplicateCoordinate = fmt.Errorf("duplicate coordinate")
	ErrCoordinateFormat    = fmt.Errorf("invalid coordinate file")
)

// LoadCoordinates - read an area keyed coordinate reference.
// A .yaml/.yml file maps area names to {latitude, longitude}; a .csv file has the
// header area,latitude,longitude.
func LoadCoordinates(path string) (schema.Coordinates, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseCoordinatesYAML(data)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCoordinatesCSV(f)
	default:
		return nil, fmt.Errorf("%w: unsupported extension of %s", ErrCoordinateFormat, path)
	}
}

// ParseCoordinatesYAML - area name to coordinate mapping
func ParseCoordinatesYAML(data []byte) (schema.Coordinates, error) {
	var raw yaml.MapSlice
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoordinateFormat, err)
	}

	ref := make(schema.Coordinates, len(raw))
	for _, item := range raw {
		name, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("%w: area %v is not a string", ErrCoordinateFormat, item.Key)
		}

		// re-encode the value to decode it into a coordinate
		b, err := yaml.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		var entry coordinateEntry
		if err := yaml.UnmarshalStrict(b, &entry); err != nil {
			return nil, fmt.Errorf("%w: area %s: %s", ErrCoordinateFormat, name, err)
		}
		if entry.Latitude == nil || entry.Longitude == nil {
			return nil, fmt.Errorf("%w: area %s needs both latitude and longitude", ErrCoordinateFormat, name)
		}

		c := schema.Coordinate{Latitude: *entry.Latitude, Longitude: *entry.Longitude}
		if err := addCoordinate(ref, name, c); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// ReadCoordinatesCSV - area,latitude,longitude rows after a header
func ReadCoordinatesCSV(r io.Reader) (schema.Coordinates, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCoordinateFormat, err)
	}
	if strings.ToLower(header[0]) != "area" || strings.ToLower(header[1]) != "latitude" || strings.ToLower(header[2]) != "longitude" {
		return nil, fmt.Errorf("%w: header %v", ErrCoordinateFormat, header)
	}

	ref := make(schema.Coordinates)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCoordinateFormat, err)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: latitude of %s: %s", ErrCoordinateFormat, row[0], err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: longitude of %s: %s", ErrCoordinateFormat, row[0], err)
		}

		if err := addCoordinate(ref, row[0], schema.Coordinate{Latitude: lat, Longitude: lng}); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

func addCoordinate(ref schema.Coordinates, name string, c schema.Coordinate) error {
	key := utils.AreaKey(name)
	if key == "" {
		return fmt.Errorf("%w: empty area name", ErrCoordinateFormat)
	}
	if _, ok := ref[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCoordinate, name)
	}
	ref[key] = c
	return nil
}
