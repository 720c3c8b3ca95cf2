package db

import (
	"context"
	"fmt"
	"time"

	"vermietify/internal/config"
	cryptoinfra "vermietify/internal/infra/crypto"
	"vermietify/internal/usecase"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB    *gorm.DB
	canon usecase.Canonicalizer
}

// NewStore connects to postgres, retrying until cfg.DBConnectTimeout elapses.
// An empty DSN yields a store with no connection; callers fall back to memstore.
func NewStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PostgresDSN == "" {
		log.Info("POSTGRES_DSN not set; starting in no-db mode")
		return &Store{canon: cryptoinfra.NewService()}, nil
	}

	var gdb *gorm.DB
	connect := func() error {
		opened, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return err
		}
		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		gdb = opened
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.DBConnectTimeout
	notify := func(err error, wait time.Duration) {
		log.Warn("postgres not ready; retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreFromDB(gdb), nil
}

func NewStoreFromDB(gdb *gorm.DB) *Store {
	return &Store{DB: gdb, canon: cryptoinfra.NewService()}
}

func (s *Store) Connected() bool { return s != nil && s.DB != nil }

func (s *Store) Submissions() *SubmissionRepository {
	return NewSubmissionRepository(s.DB, s.canon)
}

func (s *Store) Audit() *AuditEventRepository {
	return NewAuditEventRepository(s.DB, s.canon)
}

func (s *Store) Backups() *BackupRepository {
	return NewBackupRepository(s.DB)
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
