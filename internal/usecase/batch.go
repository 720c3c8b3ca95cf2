package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vermietify/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchConcurrency = 4

type BatchFailure struct {
	TargetID string `json:"target_id"`
	Error    string `json:"error"`
}

// BatchResult always satisfies Total == len(Success) + len(Failed). Both lists
// keep the order of the submitted targets.
type BatchResult struct {
	BatchID   string         `json:"batch_id"`
	Operation string         `json:"operation"`
	Total     int            `json:"total"`
	Success   []string       `json:"success"`
	Failed    []BatchFailure `json:"failed"`
}

type BatchOperation func(ctx context.Context, targetID string) error

// RunBatch calls op once per target with at most concurrency calls in flight.
// A target's error or panic is recorded against that target only.
func RunBatch(ctx context.Context, targets []string, concurrency int, op BatchOperation) BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	errs := make([]error, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			errs[i] = runOne(gctx, target, op)
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Total: len(targets), Success: []string{}, Failed: []BatchFailure{}}
	for i, target := range targets {
		if errs[i] != nil {
			result.Failed = append(result.Failed, BatchFailure{TargetID: target, Error: errs[i].Error()})
			continue
		}
		result.Success = append(result.Success, target)
	}
	return result
}

func runOne(ctx context.Context, target string, op BatchOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return op(ctx, target)
}

const (
	BatchArchive  = "archive"
	BatchValidate = "validate"
	BatchSubmit   = "submit"
	BatchMigrate  = "migrate"
	BatchSnapshot = "snapshot"
)

type BatchRequest struct {
	Operation string
	Targets   []string
	Params    map[string]string
	Actor     string
}

// BatchService runs engine operations across many submissions. Each target is
// an independent atomic operation; there is no cross-target transaction.
type BatchService struct {
	Engine      *Engine
	Migrator    *YearMigrator
	Backups     *BackupService
	Concurrency int
	Metrics     Metrics
	Logger      *zap.Logger
}

func NewBatchService(engine *Engine, migrator *YearMigrator, backups *BackupService, concurrency int) *BatchService {
	return &BatchService{
		Engine:      engine,
		Migrator:    migrator,
		Backups:     backups,
		Concurrency: concurrency,
		Metrics:     noopMetrics{},
		Logger:      zap.NewNop(),
	}
}

func (s *BatchService) Run(ctx context.Context, req BatchRequest) (BatchResult, error) {
	op, err := s.operation(req)
	if err != nil {
		return BatchResult{}, err
	}
	targets := dedupeTargets(req.Targets)
	if len(targets) == 0 {
		return BatchResult{}, fmt.Errorf("batch has no targets: %w", domain.ErrInvalidArgument)
	}
	batchID := uuid.NewString()
	started := time.Now()
	result := RunBatch(ctx, targets, s.Concurrency, op)
	result.BatchID = batchID
	result.Operation = req.Operation

	if s.Metrics != nil {
		s.Metrics.BatchCompleted(ctx, req.Operation, len(result.Success), len(result.Failed))
	}
	s.logger().Info("batch completed",
		zap.String("batch_id", batchID),
		zap.String("operation", req.Operation),
		zap.Int("total", result.Total),
		zap.Int("success", len(result.Success)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (s *BatchService) operation(req BatchRequest) (BatchOperation, error) {
	actor := actorOrSystem(req.Actor)
	switch strings.ToLower(strings.TrimSpace(req.Operation)) {
	case BatchArchive:
		reason := req.Params["reason"]
		return func(ctx context.Context, id string) error {
			_, err := s.Engine.Archive(ctx, id, reason, actor)
			return err
		}, nil
	case BatchValidate:
		return func(ctx context.Context, id string) error {
			_, err := s.Engine.Validate(ctx, id, actor)
			return err
		}, nil
	case BatchSubmit:
		return func(ctx context.Context, id string) error {
			_, err := s.Engine.Submit(ctx, id, actor)
			return err
		}, nil
	case BatchMigrate:
		year, err := strconv.Atoi(strings.TrimSpace(req.Params["target_year"]))
		if err != nil {
			return nil, fmt.Errorf("migrate batch needs numeric target_year: %w", domain.ErrInvalidArgument)
		}
		if s.Migrator == nil {
			return nil, errors.New("year migrator not configured")
		}
		return func(ctx context.Context, id string) error {
			if s.Backups != nil {
				if _, err := s.Backups.SnapshotEntity(ctx, domain.KindSubmission, id, BackupReasonMigration, actor); err != nil {
					return fmt.Errorf("snapshot before migration: %w", err)
				}
			}
			_, err := s.Migrator.Migrate(ctx, id, year, actor)
			return err
		}, nil
	case BatchSnapshot:
		if s.Backups == nil {
			return nil, errors.New("backup service not configured")
		}
		reason := req.Params["reason"]
		if reason == "" {
			reason = BackupReasonBatch
		}
		return func(ctx context.Context, id string) error {
			_, err := s.Backups.SnapshotEntity(ctx, domain.KindSubmission, id, reason, actor)
			return err
		}, nil
	}
	return nil, fmt.Errorf("unknown batch operation %q: %w", req.Operation, domain.ErrInvalidArgument)
}

func dedupeTargets(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (s *BatchService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
