package schema

import (
	"fmt"
	"strings"
)

// AreaType - granularity of geographic aggregation used by the source API
type AreaType string

const (
	AreaOverview AreaType = "overview"
	AreaNation   AreaType = "nation"
	AreaRegion   AreaType = "region"
	AreaLTLA     AreaType = "ltla"
)

var ErrUnknownAreaType = fmt.Errorf("unknown area type")

var areaTypeAlias = map[string]AreaType{
	"overview":                   AreaOverview,
	"nation":                     AreaNation,
	"region":                     AreaRegion,
	"ltla":                       AreaLTLA,
	"lower-tier-local-authority": AreaLTLA,
}

// ParseAreaType - accept both the api value and the long form used in configuration
func ParseAreaType(s string) (AreaType, error) {
	if t, ok := areaTypeAlias[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAreaType, s)
}

// Filter - the api filter expression for this area type
func (a AreaType) Filter() string {
	return "areaType=" + string(a)
}
