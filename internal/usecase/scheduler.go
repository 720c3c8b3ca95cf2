package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vermietify/internal/domain"

	"go.uber.org/zap"
)

const (
	JobAutoSubmitSweep = "auto-submit-sweep"
	JobOutcomePoll     = "outcome-poll"
	JobBackupRetention = "backup-retention"
)

// Job is one entry of the scheduler's registered-jobs table. Run receives the
// tick time so jobs never read the wall clock themselves.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

// Scheduler runs registered jobs on their intervals. A lease per job name keeps
// a run exclusive across instances for one interval.
type Scheduler struct {
	Lease  domain.Lease
	Holder string
	Clock  func() time.Time
	Logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

func NewScheduler(lease domain.Lease, holder string) *Scheduler {
	return &Scheduler{
		Lease:  lease,
		Holder: holder,
		Clock:  time.Now,
		Logger: zap.NewNop(),
		jobs:   map[string]Job{},
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run func: %w", domain.ErrInvalidArgument)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s needs a positive interval: %w", job.Name, domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs == nil {
		s.jobs = map[string]Job{}
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered: %w", job.Name, domain.ErrConflict)
	}
	s.jobs[job.Name] = job
	return nil
}

func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunOnce runs the named job now if this holder obtains its lease. It reports
// whether the job ran.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("job %s: %w", name, domain.ErrNotFound)
	}
	if s.Lease != nil {
		acquired, err := s.Lease.Acquire(ctx, "job:"+name, s.Holder, job.Interval)
		if err != nil {
			return false, fmt.Errorf("acquire lease for %s: %w", name, err)
		}
		if !acquired {
			s.logger().Debug("job lease held elsewhere", zap.String("job", name))
			return false, nil
		}
	}
	now := s.now()
	started := time.Now()
	err := job.Run(ctx, now)
	if err != nil {
		s.logger().Warn("job failed", zap.String("job", name), zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return true, err
	}
	s.logger().Info("job completed", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
	return true, nil
}

// Start ticks every registered job until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.Jobs() {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_, _ = s.RunOnce(ctx, job.Name)
				}
			}
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// StandardJobs builds the engine's registered jobs table.
func StandardJobs(engine *Engine, backups *BackupService, sweepEvery, pollEvery, retentionEvery, retention time.Duration) []Job {
	jobs := []Job{
		{
			Name:     JobAutoSubmitSweep,
			Interval: sweepEvery,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := engine.Sweep(ctx, now)
				return err
			},
		},
		{
			Name:     JobOutcomePoll,
			Interval: pollEvery,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := engine.PollOutcomes(ctx, now)
				return err
			},
		},
	}
	if backups != nil && retention > 0 {
		jobs = append(jobs, Job{
			Name:     JobBackupRetention,
			Interval: retentionEvery,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := backups.Prune(ctx, now, retention)
				return err
			},
		})
	}
	return jobs
}
