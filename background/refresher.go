// Package background keeps the served tables fresh by running the pipeline on a
// schedule.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/bitmark-inc/covid19-uk/pipeline"
)

const (
	logPrefix = "background"

	DefaultSchedule = "@every 1h"
	DefaultTimeout  = 10 * time.Minute
)

var (
	ErrInvalidSchedule = fmt.Errorf("invalid refresh schedule")
	ErrAlreadyStarted  = fmt.Errorf("refresher already started")
)

// Runner - a pipeline run followed by persistence
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
	Persist(ctx context.Context, result *pipeline.Result, sinks ...pipeline.Sink) error
}

// Refresher - run the pipeline on a cron schedule, hold and persist its result
type Refresher struct {
	sync.Mutex
	// refreshing - one refresh at a time, scheduled or not
	refreshing sync.Mutex
	runner     Runner
	holder     *Holder
	sinks      []pipeline.Sink
	timeout    time.Duration
	cron       *cron.Cron
}

func NewRefresher(runner Runner, holder *Holder, sinks ...pipeline.Sink) *Refresher {
	return &Refresher{
		runner:  runner,
		holder:  holder,
		sinks:   sinks,
		timeout: DefaultTimeout,
	}
}

// SetTimeout - bound of a single refresh
func (r *Refresher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		r.timeout = timeout
	}
}

// Refresh - one run. A run with failures still updates the tables it produced.
// Concurrent calls wait for each other so their persists never interleave.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.refreshing.Lock()
	defer r.refreshing.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.runner.Run(ctx)
	if nil != err {
		sentry.CaptureException(err)
		var runErr *pipeline.RunErrors
		if !errors.As(err, &runErr) || result == nil {
			log.WithFields(log.Fields{"prefix": logPrefix, "error": err}).Error("run pipeline")
			return err
		}
		log.WithFields(log.Fields{
			"prefix":   logPrefix,
			"run_id":   result.RunID,
			"failures": len(runErr.Errors()),
		}).Warn("pipeline run with failures")
	}

	if len(result.Order) == 0 {
		return err
	}
	r.holder.Update(result)

	// persist the merged tables so a partial run does not drop tables from the stores
	if perr := r.runner.Persist(ctx, r.holder.Result(), r.sinks...); nil != perr {
		sentry.CaptureException(perr)
		if nil == err {
			err = perr
		} else {
			err = fmt.Errorf("%s\n%w", err.Error(), perr)
		}
	}

	log.WithFields(log.Fields{"prefix": logPrefix, "run_id": result.RunID, "tables": len(result.Order)}).Info("refresh tables")
	return err
}

// Start - refresh on the schedule, a run still in progress skips the next tick
func (r *Refresher) Start(schedule string) error {
	r.Lock()
	defer r.Unlock()

	if r.cron != nil {
		return ErrAlreadyStarted
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() {
		_ = r.Refresh(context.Background())
	}); nil != err {
		return fmt.Errorf("%w: %q: %s", ErrInvalidSchedule, schedule, err)
	}

	c.Start()
	r.cron = c

	log.WithFields(log.Fields{"prefix": logPrefix, "schedule": schedule}).Info("refresher started")
	return nil
}

// Stop - stop scheduling and wait for a running refresh
func (r *Refresher) Stop() {
	r.Lock()
	defer r.Unlock()

	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil

	log.WithField("prefix", logPrefix).Info("refresher stopped")
}
