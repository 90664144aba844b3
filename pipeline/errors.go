package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StageRelease = "release"
	StageIngest  = "ingest"
	StageDerive  = "derive"
	StagePersist = "persist"
)

var (
	ErrUpstreamFailed = fmt.Errorf("upstream table failed")
)

// StageError - failure of one stage for one table or sink
type StageError struct {
	Stage string
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s", e.Stage, e.Name, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RunErrors - every failure of a run
type RunErrors struct {
	errors []error
}

func NewRunErrors(errors []error) *RunErrors {
	return &RunErrors{
		errors: errors,
	}
}

func (e *RunErrors) Error() string {
	errorStrings := make([]string, len(e.errors))
	for i, err := range e.errors {
		errorStrings[i] = fmt.Sprintf("#%d: %s", i, err.Error())
	}
	return strings.Join(errorStrings, "\n")
}

// Errors - the failures in the order they happened
func (e *RunErrors) Errors() []error {
	return e.errors
}

// Is - true when any of the failures matches target
func (e *RunErrors) Is(target error) bool {
	for _, err := range e.errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Failed - whether a stage failed for the named table or sink
func (e *RunErrors) Failed(stage, name string) bool {
	for _, err := range e.errors {
		var s *StageError
		if errors.As(err, &s) && s.Stage == stage && s.Name == name {
			return true
		}
	}
	return false
}

// runErrors - nil when nothing failed, so the result compares to a nil error
func runErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return NewRunErrors(errs)
}
