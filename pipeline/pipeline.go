// Package pipeline runs one ingestion and transform pass over the configured datasets
// and hands the prepared tables to sinks.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"

	"github.com/bitmark-inc/covid19-uk/aggregate"
	"github.com/bitmark-inc/covid19-uk/consts"
	"github.com/bitmark-inc/covid19-uk/external/phe"
	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/utils"
)

const (
	logPrefix = "pipeline"
)

// Sink - destination of the prepared tables of a run
type Sink interface {
	Save(ctx context.Context, batch *schema.Batch) error
}

// Result - tables prepared by one run, keyed by name
type Result struct {
	RunID   string
	Release time.Time
	Tables  map[string]*schema.Table
	// Order - table names, ingested tables first, in configuration order
	Order []string
	// Unmatched - areas without a coordinate per joined table
	Unmatched map[string][]string
}

func newResult(runID string) *Result {
	return &Result{
		RunID:     runID,
		Tables:    make(map[string]*schema.Table),
		Order:     []string{},
		Unmatched: make(map[string][]string),
	}
}

func (r *Result) add(t *schema.Table) {
	r.Tables[t.Name] = t
	r.Order = append(r.Order, t.Name)
}

// Table - prepared table by name
func (r *Result) Table(name string) (*schema.Table, bool) {
	t, ok := r.Tables[name]
	return t, ok
}

// Batch - the tables in order, as persisted by sinks
func (r *Result) Batch() *schema.Batch {
	b := &schema.Batch{
		RunID:   r.RunID,
		Release: r.Release,
		Tables:  make([]*schema.Table, 0, len(r.Order)),
	}
	for _, name := range r.Order {
		b.Tables = append(b.Tables, r.Tables[name])
	}
	return b
}

// Pipeline - fetch the configured datasets and derive tables from them
type Pipeline struct {
	config      Config
	source      phe.Source
	coordinates schema.Coordinates
	scope       tally.Scope
}

type Option func(*Pipeline)

// WithCoordinates - reference coordinates for joins, added to the nation coordinates
func WithCoordinates(ref schema.Coordinates) Option {
	return func(p *Pipeline) {
		for key, c := range ref {
			p.coordinates[key] = c
		}
	}
}

// WithScope - metrics scope of the pipeline
func WithScope(scope tally.Scope) Option {
	return func(p *Pipeline) {
		p.scope = scope.SubScope(logPrefix)
	}
}

// New - pipeline over a source, the config is validated first
func New(config Config, source phe.Source, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); nil != err {
		return nil, err
	}

	p := &Pipeline{
		config:      config,
		source:      source,
		coordinates: consts.NationReference(),
		scope:       tally.NoopScope,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run - one pass: release timestamp, ingestion, then every derived table in
// configuration order. A failure never stops unrelated tables, the returned error is a
// *RunErrors with every failure and the result holds whatever succeeded.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := newResult(uuid.New().String())
	errs := []error{}

	l := log.WithFields(log.Fields{"prefix": logPrefix, "run_id": result.RunID})
	l.Info("start run")

	release, err := p.source.ReleaseTimestamp(ctx)
	if nil != err {
		l.WithError(err).Warn("fetch release timestamp")
		errs = append(errs, &StageError{Stage: StageRelease, Err: err})
	} else {
		result.Release = release
		l.Info(utils.ReleaseBanner(release))
	}

	tables, ingestErrs := p.ingest(ctx)
	errs = append(errs, ingestErrs...)
	for _, d := range p.config.Datasets {
		if t, ok := tables[d.Name]; ok {
			result.add(t)
		}
	}

	for _, d := range p.config.Derived {
		src, ok := result.Table(d.From)
		if !ok {
			errs = append(errs, &StageError{
				Stage: StageDerive,
				Name:  d.Name,
				Err:   fmt.Errorf("%w: %s", ErrUpstreamFailed, d.From),
			})
			continue
		}

		t, unmatched, err := p.derive(src, d)
		if nil != err {
			l.WithFields(log.Fields{"table": d.Name, "error": err}).Error("derive table")
			errs = append(errs, &StageError{Stage: StageDerive, Name: d.Name, Err: err})
			continue
		}
		if len(unmatched) > 0 {
			result.Unmatched[d.Name] = unmatched
			p.scope.Tagged(map[string]string{"table": d.Name}).Counter("unmatched_areas").Inc(int64(len(unmatched)))
		}
		result.add(t)
	}

	for _, name := range result.Order {
		p.scope.Tagged(map[string]string{"table": name}).Counter("rows").Inc(int64(result.Tables[name].Len()))
	}
	p.scope.Counter("runs").Inc(1)
	p.scope.Counter("run_errors").Inc(int64(len(errs)))
	p.scope.Gauge("tables").Update(float64(len(result.Order)))
	p.scope.Timer("run_latency").Record(time.Since(start))

	l.WithFields(log.Fields{
		"tables":  len(result.Order),
		"errors":  len(errs),
		"elapsed": time.Since(start).String(),
	}).Info("finish run")

	return result, runErrors(errs)
}

// ingest - fetch every dataset, concurrently when configured
func (p *Pipeline) ingest(ctx context.Context) (map[string]*schema.Table, []error) {
	tables := make(map[string]*schema.Table)
	failures := make([]error, len(p.config.Datasets))

	var mu sync.Mutex
	fetch := func(i int, d DatasetConfig) {
		t, err := p.fetch(ctx, d)
		if nil != err {
			log.WithFields(log.Fields{"prefix": logPrefix, "dataset": d.Name, "error": err}).Error("fetch dataset")
			failures[i] = &StageError{Stage: StageIngest, Name: d.Name, Err: err}
			return
		}

		mu.Lock()
		tables[d.Name] = t
		mu.Unlock()
	}

	if p.config.Concurrent {
		var wg sync.WaitGroup
		for i, d := range p.config.Datasets {
			wg.Add(1)
			go func(i int, d DatasetConfig) {
				defer wg.Done()
				fetch(i, d)
			}(i, d)
		}
		wg.Wait()
	} else {
		for i, d := range p.config.Datasets {
			fetch(i, d)
		}
	}

	errs := []error{}
	for _, err := range failures {
		if nil != err {
			errs = append(errs, err)
		}
	}
	return tables, errs
}

func (p *Pipeline) fetch(ctx context.Context, d DatasetConfig) (*schema.Table, error) {
	q, err := d.Query()
	if nil != err {
		return nil, err
	}

	t, err := p.source.Fetch(ctx, q)
	if nil != err {
		return nil, err
	}
	t.Name = d.Name

	log.WithFields(log.Fields{
		"prefix":  logPrefix,
		"dataset": d.Name,
		"rows":    t.Len(),
		"areas":   len(t.Areas()),
	}).Info("fetch dataset")
	return t, nil
}

// derive - apply the single transform of a derived table
func (p *Pipeline) derive(src *schema.Table, d DerivedConfig) (*schema.Table, []string, error) {
	var (
		out       *schema.Table
		unmatched []string
		err       error
	)

	switch {
	case d.Rolling != nil:
		missing, _ := aggregate.ParsePolicy(d.Rolling.Missing)
		out, err = aggregate.RollingAverage(src, aggregate.RollingOptions{
			Window:  d.Rolling.Window,
			Columns: d.Rolling.Columns,
			Missing: missing,
		})
	case d.Rates != nil:
		out, err = aggregate.AlignRates(src, d.Rates.Metric, d.Rates.Rate)
	case d.Coordinates != nil:
		policy, _ := aggregate.ParsePolicy(d.Coordinates.Policy)
		out, unmatched, err = aggregate.JoinCoordinates(src, p.coordinates, policy)
	default:
		err = fmt.Errorf("%w: %q has no transform", ErrInvalidConfig, d.Name)
	}
	if nil != err {
		return nil, unmatched, err
	}

	out.Name = d.Name
	out.Kind = schema.DerivedTable
	return out, unmatched, nil
}

// Persist - save the result to every sink. Sinks are independent, a failed sink does
// not stop the others.
func (p *Pipeline) Persist(ctx context.Context, result *Result, sinks ...Sink) error {
	batch := result.Batch()
	errs := []error{}

	for _, sink := range sinks {
		name := fmt.Sprintf("%T", sink)
		if err := sink.Save(ctx, batch); nil != err {
			log.WithFields(log.Fields{"prefix": logPrefix, "sink": name, "error": err}).Error("persist tables")
			p.scope.Tagged(map[string]string{"sink": name}).Counter("persist_errors").Inc(1)
			errs = append(errs, &StageError{Stage: StagePersist, Name: name, Err: err})
			continue
		}
		log.WithFields(log.Fields{"prefix": logPrefix, "sink": name, "run_id": result.RunID}).Info("persist tables")
	}

	return runErrors(errs)
}
