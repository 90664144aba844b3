package background

import (
	"sync"
	"time"

	"github.com/bitmark-inc/covid19-uk/pipeline"
	"github.com/bitmark-inc/covid19-uk/schema"
)

// Holder - latest prepared tables shared between the refresher and the api
type Holder struct {
	sync.RWMutex
	result  *pipeline.Result
	updated time.Time
}

func NewHolder() *Holder {
	return &Holder{}
}

// Update - merge a run result over the held one. Tables missing from the run, because
// their fetch or transform failed, keep their previous version.
func (h *Holder) Update(result *pipeline.Result) {
	h.Lock()
	defer h.Unlock()

	merged := &pipeline.Result{
		RunID:     result.RunID,
		Release:   result.Release,
		Tables:    make(map[string]*schema.Table, len(result.Tables)),
		Order:     make([]string, 0, len(result.Order)),
		Unmatched: result.Unmatched,
	}
	for _, name := range result.Order {
		merged.Tables[name] = result.Tables[name]
		merged.Order = append(merged.Order, name)
	}

	if previous := h.result; previous != nil {
		if merged.Release.IsZero() {
			merged.Release = previous.Release
		}
		for _, name := range previous.Order {
			if _, ok := merged.Tables[name]; ok {
				continue
			}
			merged.Tables[name] = previous.Tables[name]
			merged.Order = append(merged.Order, name)
		}
	}

	h.result = merged
	h.updated = time.Now().UTC()
}

// Load - hold a batch read back from a store
func (h *Holder) Load(batch *schema.Batch) {
	result := &pipeline.Result{
		RunID:     batch.RunID,
		Release:   batch.Release,
		Tables:    make(map[string]*schema.Table, len(batch.Tables)),
		Order:     batch.Names(),
		Unmatched: map[string][]string{},
	}
	for _, t := range batch.Tables {
		result.Tables[t.Name] = t
	}
	h.Update(result)
}

// Result - held tables, nil before the first update. The result must not be modified.
func (h *Holder) Result() *pipeline.Result {
	h.RLock()
	defer h.RUnlock()
	return h.result
}

// Updated - time of the latest update
func (h *Holder) Updated() time.Time {
	h.RLock()
	defer h.RUnlock()
	return h.updated
}
