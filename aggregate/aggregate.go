// Package aggregate turns ingested tables into the derived tables handed to consumers.
// Every function returns a new table and leaves its input untouched.
package aggregate

import (
	"fmt"
	"strings"
)

const (
	logPrefix = "aggregate"

	DefaultWindow = 7
)

var (
	ErrColumnNotFound    = fmt.Errorf("column not found")
	ErrMissingCoordinate = fmt.Errorf("missing coordinate")
	ErrInvalidWindow     = fmt.Errorf("invalid rolling window")
	ErrDuplicateArea     = fmt.Errorf("duplicate area")
	ErrUnknownPolicy     = fmt.Errorf("unknown policy")
)

// Policy - what a transform does with a row or column it cannot resolve
type Policy string

const (
	PolicyFail Policy = "fail"
	PolicySkip Policy = "skip"
	PolicyNull Policy = "null"
)

var policyAlias = map[string]Policy{
	"":          PolicyFail,
	"fail":      PolicyFail,
	"abort":     PolicyFail,
	"skip":      PolicySkip,
	"drop":      PolicySkip,
	"null":      PolicyNull,
	"null-fill": PolicyNull,
	"keep":      PolicyNull,
}

// ParsePolicy - policy from its configuration value, empty means fail
func ParsePolicy(s string) (Policy, error) {
	if p, ok := policyAlias[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}
