package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/infra/lease"
	"vermietify/internal/usecase"

	"github.com/stretchr/testify/require"
)

func TestScheduler_LeaseKeepsRunsExclusive(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	shared := lease.NewMemory(func() time.Time { return now })
	runs := 0
	job := usecase.Job{Name: "count", Interval: time.Minute, Run: func(ctx context.Context, at time.Time) error {
		runs++
		require.Equal(t, now, at)
		return nil
	}}

	a := usecase.NewScheduler(shared, "instance-a")
	a.Clock = func() time.Time { return now }
	b := usecase.NewScheduler(shared, "instance-b")
	b.Clock = func() time.Time { return now }
	require.NoError(t, a.Register(job))
	require.NoError(t, b.Register(job))

	ran, err := a.RunOnce(context.Background(), "count")
	require.NoError(t, err)
	require.True(t, ran)
	ran, err = b.RunOnce(context.Background(), "count")
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 1, runs)

	now = now.Add(2 * time.Minute)
	ran, err = b.RunOnce(context.Background(), "count")
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 2, runs)
}

func TestScheduler_Registration(t *testing.T) {
	s := usecase.NewScheduler(nil, "solo")
	noop := func(context.Context, time.Time) error { return nil }

	require.NoError(t, s.Register(usecase.Job{Name: "b", Interval: time.Second, Run: noop}))
	require.NoError(t, s.Register(usecase.Job{Name: "a", Interval: time.Second, Run: noop}))
	require.ErrorIs(t, s.Register(usecase.Job{Name: "a", Interval: time.Second, Run: noop}), domain.ErrConflict)
	require.ErrorIs(t, s.Register(usecase.Job{Name: "c", Run: noop}), domain.ErrInvalidArgument)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	require.Equal(t, "a", jobs[0].Name)

	_, err := s.RunOnce(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	boom := errors.New("boom")
	require.NoError(t, s.Register(usecase.Job{Name: "fails", Interval: time.Second, Run: func(context.Context, time.Time) error { return boom }}))
	ran, err := s.RunOnce(context.Background(), "fails")
	require.True(t, ran)
	require.ErrorIs(t, err, boom)
}

func TestStandardJobsDriveTheEngine(t *testing.T) {
	h := newHarness(t)
	sub := h.validatedSubmission(t, "b-1", 95)

	s := usecase.NewScheduler(nil, "solo")
	s.Clock = func() time.Time { return h.now }
	for _, job := range usecase.StandardJobs(h.engine, h.backups, time.Minute, time.Minute, time.Hour, 90*24*time.Hour) {
		require.NoError(t, s.Register(job))
	}
	require.Len(t, s.Jobs(), 3)

	ran, err := s.RunOnce(context.Background(), usecase.JobAutoSubmitSweep)
	require.NoError(t, err)
	require.True(t, ran)

	stored, err := h.engine.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, stored.Status)
}
