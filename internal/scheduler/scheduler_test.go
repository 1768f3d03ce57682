package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockfusion/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	failures int32 // fail this many times before succeeding
	calls    int32
	block    chan struct{}
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), WithRetry(2, time.Millisecond))
}

func TestRunJob_RetriesUntilSuccess(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	res := s.runJob(job)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Error)

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestRunJob_FailsAfterRetries(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "broken", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	res := s.runJob(job)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "transient", res.Error)

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestRunJob_SkipsOverlappingTrigger(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "slow", schedule: "@daily", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult)
	go func() { done <- s.runJob(job) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.runJob(job).Skipped)

	close(job.block)
	assert.True(t, (<-done).Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "stuck", schedule: "@daily", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult)
	go func() { done <- s.runJob(job) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) == 1 }, time.Second, time.Millisecond)

	s.Stop()
	res := <-done
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts, "no retry after cancellation")
}

func TestAddRemoveJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 0 18 * * 1-5"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "0 */15 9-15 * * 1-5"}))
	assert.Error(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&fakeJob{name: "c", schedule: "not a cron"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RunJob("a"))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+5; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}

	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetLatestResults(1000), maxHistory)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
	assert.Len(t, h.GetFailedResults(), maxHistory/2)
	assert.Equal(t, 0.0, (&JobHistory{}).GetSuccessRate())
}

func TestRunJobAndWait(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&fakeJob{name: "once", schedule: "@daily"}))

	res, err := s.RunJobAndWait("once")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)

	_, err = s.RunJobAndWait("missing")
	assert.Error(t, err)
}
