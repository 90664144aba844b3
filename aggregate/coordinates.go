package aggregate

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/utils"
)

const (
	LatitudeColumn  = "Latitude"
	LongitudeColumn = "Longitude"
)

// JoinCoordinates - attach latitude and longitude to every row by area key.
// It returns the areas without a reference entry; what happens to their rows depends on
// the policy: fail returns ErrMissingCoordinate, skip drops them, null keeps them with nil
// coordinates.
func JoinCoordinates(t *schema.Table, ref schema.Coordinates, policy Policy) (*schema.Table, []string, error) {
	unmatched := []string{}
	seen := make(map[string]struct{})
	for _, r := range t.Records {
		if _, ok := ref[utils.AreaKey(r.Area)]; ok {
			continue
		}
		if _, ok := seen[r.Area]; ok {
			continue
		}
		seen[r.Area] = struct{}{}
		unmatched = append(unmatched, r.Area)
	}

	if len(unmatched) > 0 {
		fields := log.Fields{
			"prefix":    logPrefix,
			"table":     t.Name,
			"unmatched": len(unmatched),
			"policy":    policy,
		}
		switch policy {
		case PolicySkip, PolicyNull:
			log.WithFields(fields).Warn("areas without coordinate")
		default:
			return nil, unmatched, fmt.Errorf("%w: %s", ErrMissingCoordinate, strings.Join(unmatched, ", "))
		}
	}

	out := &schema.Table{
		Name:    t.Name,
		Kind:    t.Kind,
		Window:  t.Window,
		Columns: make([]schema.Column, 0, len(t.Columns)+2),
		Records: make([]schema.Record, 0, len(t.Records)),
	}
	out.Columns = append(out.Columns, t.Columns...)
	for _, name := range []string{LatitudeColumn, LongitudeColumn} {
		if _, ok := t.Column(name); !ok {
			out.Columns = append(out.Columns, schema.Column{Name: name, Kind: schema.MetricColumn})
		}
	}

	for _, r := range t.Records {
		c, ok := ref[utils.AreaKey(r.Area)]
		if !ok && policy == PolicySkip {
			continue
		}

		record := r.Clone()
		if ok {
			record.Metrics[LatitudeColumn] = schema.Float(c.Latitude)
			record.Metrics[LongitudeColumn] = schema.Float(c.Longitude)
		} else {
			record.Metrics[LatitudeColumn] = nil
			record.Metrics[LongitudeColumn] = nil
		}
		out.Records = append(out.Records, record)
	}

	return out, unmatched, nil
}
