package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeops/backend/pkg/logger"
)

type flakyJob struct {
	name     string
	failures int
	calls    int
}

func (j *flakyJob) Name() string     { return j.name }
func (j *flakyJob) Schedule() string { return "0 0 14 * * 1-5" }

func (j *flakyJob) Run(ctx context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("boom")
	}
	return nil
}

type misfireRecorder struct {
	mu   sync.Mutex
	jobs []string
}

func (r *misfireRecorder) NotifyMisfire(ctx context.Context, job string, jobErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func newTestScheduler(notifier MisfireNotifier) *Scheduler {
	return New(Config{MaxRetries: 2}, notifier, logger.NewNop())
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(nil)

	require.NoError(t, s.AddJob(&flakyJob{name: "b"}))
	require.NoError(t, s.AddJob(&flakyJob{name: "a"}))
	assert.Error(t, s.AddJob(&flakyJob{name: "a"}), "duplicate name")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())
}

type badScheduleJob struct{ flakyJob }

func (badScheduleJob) Schedule() string { return "not a cron" }

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := newTestScheduler(nil)

	err := s.AddJob(&badScheduleJob{flakyJob{name: "bad"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule job bad")
	assert.Empty(t, s.GetAllJobs())
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(nil)
	require.NoError(t, s.AddJob(&flakyJob{name: "a"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))

	_, err := s.RunNow(context.Background(), "a")
	assert.Error(t, err)
}

func TestRunNow_RetriesUntilSuccess(t *testing.T) {
	notifier := &misfireRecorder{}
	s := newTestScheduler(notifier)
	job := &flakyJob{name: "ops_run", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "ops_run")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, job.calls)
	assert.Empty(t, result.Error)
	assert.Empty(t, notifier.jobs)
}

func TestRunNow_MisfireAfterRetries(t *testing.T) {
	notifier := &misfireRecorder{}
	s := newTestScheduler(notifier)
	job := &flakyJob{name: "ops_run", failures: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow(context.Background(), "ops_run")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 3, job.calls)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, []string{"ops_run"}, notifier.jobs)
}

func TestRunNow_CancelledContextStopsRetries(t *testing.T) {
	s := New(Config{MaxRetries: 5}, nil, logger.NewNop())
	job := &flakyJob{name: "j", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunNow(ctx, "j")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, job.calls)
	assert.Contains(t, result.Error, "retry aborted")
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler(nil)
	ok := &flakyJob{name: "ok"}
	bad := &flakyJob{name: "bad", failures: 100}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	ctx := context.Background()
	_, _ = s.RunNow(ctx, "ok")
	_, _ = s.RunNow(ctx, "ok")
	_, _ = s.RunNow(ctx, "bad")

	stats := s.GetJobStats()
	require.Len(t, stats, 2)

	assert.Equal(t, 2, stats["ok"].TotalRuns)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.NotNil(t, stats["ok"].LastSuccess)
	assert.Nil(t, stats["ok"].LastFailure)

	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.Equal(t, 0.0, stats["bad"].SuccessRate)
	assert.NotNil(t, stats["bad"].LastFailure)
	assert.Equal(t, "0 0 14 * * 1-5", stats["bad"].Schedule)
}

func TestJobHistory_KeepsLast100(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 120; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.Len(t, h.GetFailedResults(), 50)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
