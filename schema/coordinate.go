package schema

// Coordinate - static latitude/longitude of an area
type Coordinate struct {
	Latitude  float64 `yaml:"latitude" json:"latitude" bson:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude" bson:"longitude"`
}

// Coordinates - reference coordinates keyed by area key (see utils.AreaKey)
type Coordinates map[string]Coordinate
