package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/covid19-uk/pipeline"
	"github.com/bitmark-inc/covid19-uk/schema"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context) (*pipeline.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}

func (m *mockRunner) Persist(ctx context.Context, result *pipeline.Result, sinks ...pipeline.Sink) error {
	args := m.Called(ctx, result, sinks)
	return args.Error(0)
}

func testResult(runID string, names ...string) *pipeline.Result {
	r := &pipeline.Result{
		RunID:     runID,
		Release:   time.Date(2021, 3, 4, 15, 30, 0, 0, time.UTC),
		Tables:    map[string]*schema.Table{},
		Unmatched: map[string][]string{},
	}
	for _, name := range names {
		r.Tables[name] = &schema.Table{Name: name, Kind: schema.SeriesTable}
		r.Order = append(r.Order, name)
	}
	return r
}

func TestRefreshUpdatesHolderAndPersists(t *testing.T) {
	runner := new(mockRunner)
	holder := NewHolder()
	result := testResult("run-1", "national-daily", "national-7-day-average")

	runner.On("Run", mock.Anything).Return(result, nil)
	runner.On("Persist", mock.Anything, mock.MatchedBy(func(r *pipeline.Result) bool {
		return r.RunID == "run-1" && len(r.Order) == 2
	}), mock.Anything).Return(nil)

	r := NewRefresher(runner, holder)
	require.NoError(t, r.Refresh(context.Background()))

	held := holder.Result()
	require.NotNil(t, held)
	assert.Equal(t, "run-1", held.RunID)
	assert.Equal(t, []string{"national-daily", "national-7-day-average"}, held.Order)
	assert.False(t, holder.Updated().IsZero())
	runner.AssertExpectations(t)
}

func TestRefreshPartialRunKeepsPreviousTables(t *testing.T) {
	runner := new(mockRunner)
	holder := NewHolder()
	holder.Update(testResult("run-1", "national-daily", "ltla-latest-daily"))

	partial := testResult("run-2", "ltla-latest-daily")
	partial.Release = time.Time{}
	runErr := pipeline.NewRunErrors([]error{
		&pipeline.StageError{Stage: pipeline.StageIngest, Name: "national-daily", Err: errors.New("status 503")},
	})

	runner.On("Run", mock.Anything).Return(partial, runErr)
	runner.On("Persist", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	r := NewRefresher(runner, holder)
	err := r.Refresh(context.Background())
	assert.Error(t, err)

	held := holder.Result()
	assert.Equal(t, "run-2", held.RunID)
	assert.Equal(t, []string{"ltla-latest-daily", "national-daily"}, held.Order)
	assert.Equal(t, 2021, held.Release.Year())
	assert.True(t, partial.Tables["ltla-latest-daily"] == held.Tables["ltla-latest-daily"])
}

func TestRefreshFailedRunKeepsHolder(t *testing.T) {
	runner := new(mockRunner)
	holder := NewHolder()

	runner.On("Run", mock.Anything).Return(nil, context.DeadlineExceeded)

	r := NewRefresher(runner, holder)
	err := r.Refresh(context.Background())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, holder.Result())
	runner.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefreshPersistFailure(t *testing.T) {
	runner := new(mockRunner)
	holder := NewHolder()

	runner.On("Run", mock.Anything).Return(testResult("run-1", "national-daily"), nil)
	runner.On("Persist", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	r := NewRefresher(runner, holder)
	err := r.Refresh(context.Background())
	assert.EqualError(t, err, "disk full")
	assert.NotNil(t, holder.Result())
}

func TestRefreshCallsDoNotOverlap(t *testing.T) {
	runner := new(mockRunner)
	holder := NewHolder()

	var active, maxActive int32
	enter := func(mock.Arguments) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}

	runner.On("Run", mock.Anything).Return(testResult("run-1", "national-daily"), nil).Run(enter)
	runner.On("Persist", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(enter)

	r := NewRefresher(runner, holder)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	runner.AssertNumberOfCalls(t, "Persist", 4)
}

func TestRefresherStartStop(t *testing.T) {
	r := NewRefresher(new(mockRunner), NewHolder())

	err := r.Start("every tuesday")
	assert.True(t, errors.Is(err, ErrInvalidSchedule))

	require.NoError(t, r.Start("@every 1h"))
	assert.Equal(t, ErrAlreadyStarted, r.Start("@every 1h"))
	r.Stop()
	r.Stop()
}

func TestHolderLoad(t *testing.T) {
	holder := NewHolder()
	holder.Load(&schema.Batch{
		RunID:   "run-0",
		Release: time.Date(2021, 3, 4, 15, 30, 0, 0, time.UTC),
		Tables:  []*schema.Table{{Name: "national-daily"}, {Name: "ltla-latest-rate"}},
	})

	held := holder.Result()
	assert.Equal(t, "run-0", held.RunID)
	assert.Equal(t, []string{"national-daily", "ltla-latest-rate"}, held.Order)
}
