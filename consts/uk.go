package consts

import (
	"fmt"

	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/utils"
)

const (
	DefaultAPIURL        = "https://api.coronavirus.data.gov.uk"
	DefaultRollingWindow = 7

	// metric used for latest-by snapshots of local authorities
	LatestByNewCases = "newCasesByPublishDate"
)

// NationCoordinates - approximate centroid of each UK nation
var NationCoordinates map[string]schema.Coordinate

func init() {
	NationCoordinates = make(map[string]schema.Coordinate)

	NationCoordinates["England"] = schema.Coordinate{Latitude: 52.3555, Longitude: -1.1743}
	NationCoordinates["Scotland"] = schema.Coordinate{Latitude: 56.4907, Longitude: -4.2026}
	NationCoordinates["Wales"] = schema.Coordinate{Latitude: 52.1307, Longitude: -3.7837}
	NationCoordinates["Northern Ireland"] = schema.Coordinate{Latitude: 54.7877, Longitude: -6.4923}
}

// NationCoordinate - coordinate of a nation by display name
func NationCoordinate(nation string) (schema.Coordinate, error) {
	if c, ok := NationCoordinates[nation]; !ok {
		return schema.Coordinate{}, fmt.Errorf("%s not exist", nation)
	} else {
		return c, nil
	}
}

// NationReference - nation coordinates keyed for a coordinate join
func NationReference() schema.Coordinates {
	ref := make(schema.Coordinates, len(NationCoordinates))
	for name, c := range NationCoordinates {
		ref[utils.AreaKey(name)] = c
	}
	return ref
}
