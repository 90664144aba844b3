// Package phe fetches UK COVID-19 statistics from the public health dashboard api.
package phe

import (
	"context"
	"fmt"
	"time"

	"github.com/bitmark-inc/covid19-uk/schema"
)

const (
	logPrefix = "phe"
)

var (
	ErrSourceUnavailable = fmt.Errorf("source unavailable")
	ErrSchemaMismatch    = fmt.Errorf("schema mismatch")
	ErrEmptyStructure    = fmt.Errorf("empty field mapping")
)

// Source - interface to ingest statistics tables
type Source interface {
	// Fetch one table. A query with LatestBy set returns one latest row per area.
	Fetch(ctx context.Context, q schema.Query) (*schema.Table, error)
	// ReleaseTimestamp - time of the latest upstream publication, in UTC
	ReleaseTimestamp(ctx context.Context) (time.Time, error)
}
