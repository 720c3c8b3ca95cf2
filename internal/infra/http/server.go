package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vermietify/internal/config"
	"vermietify/internal/domain"
	"vermietify/internal/infra/auth"
	"vermietify/internal/infra/auth/rbac"
	"vermietify/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger
	clock  func() time.Time
	dbMode string

	engine   *usecase.Engine
	audit    *usecase.AuditRecorder
	backups  *usecase.BackupService
	migrator *usecase.YearMigrator
	batch    *usecase.BatchService

	authenticator domain.Authenticator
	authorizer    domain.Authorizer

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitSubject    bool
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Engine        *usecase.Engine
	Audit         *usecase.AuditRecorder
	Backups       *usecase.BackupService
	Migrator      *usecase.YearMigrator
	Batch         *usecase.BatchService
	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
	Logger        *zap.Logger
	Clock         func() time.Time
	// DBMode is reported by /healthz: "db" or "no-db".
	DBMode string
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        deps.Logger,
		clock:         deps.Clock,
		dbMode:        deps.DBMode,
		engine:        deps.Engine,
		audit:         deps.Audit,
		backups:       deps.Backups,
		migrator:      deps.Migrator,
		batch:         deps.Batch,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
		rateLimiter:   deps.RateLimiter,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.dbMode == "" {
		s.dbMode = "no-db"
	}
	if s.authenticator == nil {
		s.authenticator = auth.NewHeaderAuthenticator()
	}
	if s.authorizer == nil {
		s.authorizer = rbac.NewAuthorizer()
	}
	s.initRateLimit()
	s.routes()
	return s
}

func (s *Server) initRateLimit() {
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitSubject = s.cfg.RateLimitIncludeSubject
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/submissions", s.guard(routeSubmissionsWrite, domain.PermSubmissionWrite), s.handleCreate)
		v1.GET("/submissions", s.guard(routeSubmissionsRead, domain.PermSubmissionRead), s.handleList)
		v1.GET("/submissions/:id", s.guard(routeSubmissionsRead, domain.PermSubmissionRead), s.handleGet)
		v1.POST("/submissions/:id/process", s.guard(routeSubmissionsAct, domain.PermSubmissionProcess), s.handleProcess)
		v1.POST("/submissions/:id/draft", s.guard(routeSubmissionsAct, domain.PermSubmissionProcess), s.handleApplyDraft)
		v1.POST("/submissions/:id/validate", s.guard(routeSubmissionsAct, domain.PermSubmissionProcess), s.handleValidate)
		v1.POST("/submissions/:id/submit", s.guard(routeSubmissionsSubmit, domain.PermSubmissionSubmit), s.handleSubmit)
		v1.POST("/submissions/:id/outcome", s.guard(routeSubmissionsAct, domain.PermOutcomeRecord), s.handleOutcome)
		v1.POST("/submissions/:id/archive", s.guard(routeSubmissionsAct, domain.PermSubmissionArchive), s.handleArchive)
		v1.POST("/submissions/:id/migrate", s.guard(routeSubmissionsAct, domain.PermSubmissionMigrate), s.handleMigrate)
		v1.GET("/submissions/:id/backups", s.guard(routeBackupsRead, domain.PermBackupRead), s.handleListBackups)

		v1.GET("/audit/:entity_id", s.guard(routeAuditRead, domain.PermAuditExport), s.handleExportTrail)
		v1.GET("/audit/:entity_id/verify", s.guard(routeAuditRead, domain.PermAuditExport), s.handleVerifyTrail)

		v1.POST("/backups", s.guard(routeBackupsWrite, domain.PermBackupWrite), s.handleSnapshot)
		v1.GET("/backups/:id/verify", s.guard(routeBackupsRead, domain.PermBackupRead), s.handleVerifyBackup)

		v1.GET("/queues", s.guard(routeQueuesRead, domain.PermQueueRead), s.handleQueues)
		v1.POST("/batch", s.guard(routeBatch, domain.PermBatchRun), s.handleBatch)
		v1.POST("/sweep", s.guard(routeSweep, domain.PermSweepRun), s.handleSweep)
		v1.POST("/poll", s.guard(routeSweep, domain.PermSweepRun), s.handlePoll)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
