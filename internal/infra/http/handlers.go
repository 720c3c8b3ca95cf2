package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type submissionResponse struct {
	ID               string                   `json:"id"`
	BuildingID       string                   `json:"building_id"`
	FormType         string                   `json:"form_type"`
	TaxYear          int                      `json:"tax_year"`
	Status           string                   `json:"status"`
	Terminal         bool                     `json:"terminal"`
	FormData         domain.FormData          `json:"form_data"`
	XMLPayload       string                   `json:"xml_payload,omitempty"`
	ConfidenceScore  *int                     `json:"confidence_score,omitempty"`
	ValidationErrors []domain.ValidationIssue `json:"validation_errors"`
	TransferTicket   string                   `json:"transfer_ticket,omitempty"`
	SubmissionMode   string                   `json:"submission_mode"`
	LegalForm        string                   `json:"legal_form,omitempty"`
	Owner            string                   `json:"owner,omitempty"`
	CreatedAt        string                   `json:"created_at"`
	UpdatedAt        string                   `json:"updated_at"`
}

type backupResponse struct {
	ID            string         `json:"id"`
	OriginalID    string         `json:"original_id"`
	SourceKind    string         `json:"source_kind"`
	Timestamp     string         `json:"backup_timestamp"`
	Reason        string         `json:"backup_reason"`
	By            string         `json:"backup_by"`
	ImmutableHash string         `json:"immutable_hash,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

type createRequest struct {
	BuildingID     string          `json:"building_id"`
	FormType       string          `json:"form_type"`
	TaxYear        int             `json:"tax_year"`
	FormData       domain.FormData `json:"form_data"`
	SubmissionMode string          `json:"submission_mode"`
	LegalForm      string          `json:"legal_form"`
}

type draftRequest struct {
	FormData         domain.FormData          `json:"form_data"`
	ConfidenceScore  *int                     `json:"confidence_score"`
	ValidationErrors []domain.ValidationIssue `json:"validation_errors"`
}

type outcomeRequest struct {
	Accepted *bool  `json:"accepted"`
	Message  string `json:"message"`
}

type archiveRequest struct {
	Reason string `json:"reason"`
}

type migrateRequest struct {
	TargetYear int `json:"target_year"`
}

type migrateResponse struct {
	Source    submissionResponse `json:"source"`
	Target    submissionResponse `json:"target"`
	Rewritten []string           `json:"rewritten"`
	Stripped  []string           `json:"stripped"`
}

type snapshotRequest struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type batchRequest struct {
	Operation string            `json:"operation"`
	Targets   []string          `json:"targets"`
	Params    map[string]string `json:"params"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	mode := domain.ModeTest
	if req.SubmissionMode != "" {
		parsed, ok := domain.ParseSubmissionMode(req.SubmissionMode)
		if !ok {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown submission_mode")
			return
		}
		mode = parsed
	}
	principal := getPrincipal(c)
	sub, err := s.engine.Create(c.Request.Context(), usecase.CreateInput{
		BuildingID: req.BuildingID,
		FormType:   req.FormType,
		TaxYear:    req.TaxYear,
		FormData:   req.FormData,
		Mode:       mode,
		LegalForm:  req.LegalForm,
		Owner:      principal.Subject,
		Actor:      principal.Subject,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildSubmissionResponse(sub))
}

func (s *Server) handleList(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	subs, err := s.engine.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, buildSubmissionResponse(sub))
	}
	c.JSON(http.StatusOK, gin.H{"submissions": out})
}

func (s *Server) handleGet(c *gin.Context) {
	sub, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSubmissionResponse(sub))
}

func (s *Server) handleProcess(c *gin.Context) {
	sub, err := s.engine.Process(c.Request.Context(), c.Param("id"), getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleApplyDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.ConfidenceScore == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "confidence_score required")
		return
	}
	sub, err := s.engine.ApplyDraft(c.Request.Context(), c.Param("id"), usecase.DraftResult{
		FormData:         req.FormData,
		ConfidenceScore:  *req.ConfidenceScore,
		ValidationErrors: req.ValidationErrors,
	}, getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleValidate(c *gin.Context) {
	sub, err := s.engine.Validate(c.Request.Context(), c.Param("id"), getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleSubmit(c *gin.Context) {
	sub, err := s.engine.Submit(c.Request.Context(), c.Param("id"), getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Accepted == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "accepted is required")
		return
	}
	sub, err := s.engine.RecordOutcome(c.Request.Context(), c.Param("id"), *req.Accepted, req.Message, getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleArchive(c *gin.Context) {
	var req archiveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
	}
	sub, err := s.engine.Archive(c.Request.Context(), c.Param("id"), req.Reason, getPrincipal(c).Subject)
	s.respondSubmission(c, sub, err)
}

func (s *Server) handleMigrate(c *gin.Context) {
	if s.migrator == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req migrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.migrator.Migrate(c.Request.Context(), c.Param("id"), req.TargetYear, getPrincipal(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, migrateResponse{
		Source:    buildSubmissionResponse(res.Source),
		Target:    buildSubmissionResponse(res.Target),
		Rewritten: nonNil(res.Rewritten),
		Stripped:  nonNil(res.Stripped),
	})
}

func (s *Server) handleListBackups(c *gin.Context) {
	if s.backups == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	versions, err := s.backups.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]backupResponse, 0, len(versions))
	for _, snap := range versions {
		out = append(out, buildBackupResponse(snap, false))
	}
	c.JSON(http.StatusOK, gin.H{"backups": out})
}

func (s *Server) handleExportTrail(c *gin.Context) {
	if s.audit == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	format, err := usecase.ParseExportFormat(c.DefaultQuery("format", string(usecase.ExportJSON)))
	if err != nil {
		writeError(c, err)
		return
	}
	entityID := c.Param("entity_id")
	trail, err := s.audit.ExportTrail(c.Request.Context(), entityID, format)
	if err != nil {
		writeError(c, err)
		return
	}
	if format != usecase.ExportJSON {
		c.Header("Content-Disposition", `attachment; filename="audit-`+entityID+`.`+string(format)+`"`)
	}
	c.Data(http.StatusOK, trail.ContentType, trail.Body)
}

func (s *Server) handleVerifyTrail(c *gin.Context) {
	if s.audit == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	count, err := s.audit.VerifyTrail(c.Request.Context(), c.Param("entity_id"))
	if err != nil && !errors.Is(err, domain.ErrIntegrity) {
		writeError(c, err)
		return
	}
	resp := gin.H{"entity_id": c.Param("entity_id"), "events": count, "valid": err == nil}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	if s.backups == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.Kind == "" {
		req.Kind = string(domain.KindSubmission)
	}
	kind, err := domain.ParseEntityKind(req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := s.backups.SnapshotEntity(c.Request.Context(), kind, req.ID, req.Reason, getPrincipal(c).Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildBackupResponse(snap, false))
}

func (s *Server) handleVerifyBackup(c *gin.Context) {
	if s.backups == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	snap, err := s.backups.VerifySnapshot(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, domain.ErrIntegrity) {
		writeError(c, err)
		return
	}
	resp := gin.H{"id": c.Param("id"), "valid": err == nil}
	if err != nil {
		resp["error"] = err.Error()
	} else {
		resp["backup"] = buildBackupResponse(snap, true)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQueues(c *gin.Context) {
	now, err := parseNow(c, s.clock())
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := s.engine.QueueView(c.Request.Context(), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleBatch(c *gin.Context) {
	if s.batch == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	res, err := s.batch.Run(c.Request.Context(), usecase.BatchRequest{
		Operation: req.Operation,
		Targets:   req.Targets,
		Params:    req.Params,
		Actor:     getPrincipal(c).Subject,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSweep(c *gin.Context) {
	now, err := parseNow(c, s.clock())
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := s.engine.Sweep(c.Request.Context(), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handlePoll(c *gin.Context) {
	report, err := s.engine.PollOutcomes(c.Request.Context(), s.clock())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) respondSubmission(c *gin.Context, sub domain.Submission, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSubmissionResponse(sub))
}

func parseFilter(c *gin.Context) (domain.SubmissionFilter, error) {
	filter := domain.SubmissionFilter{
		BuildingID: strings.TrimSpace(c.Query("building_id")),
		FormType:   strings.TrimSpace(c.Query("form_type")),
		Owner:      strings.TrimSpace(c.Query("owner")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := domain.ParseStatus(strings.TrimSpace(part))
			if !ok {
				return filter, fmt.Errorf("unknown status %q: %w", part, domain.ErrInvalidArgument)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := c.Query("tax_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("tax_year must be a number: %w", domain.ErrInvalidArgument)
		}
		filter.TaxYear = year
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("limit must be a positive number: %w", domain.ErrInvalidArgument)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseNow(c *gin.Context, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("now"))
	if raw == "" {
		return fallback, nil
	}
	now, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("now must be RFC3339: %w", domain.ErrInvalidArgument)
	}
	return now, nil
}

func buildSubmissionResponse(sub domain.Submission) submissionResponse {
	form := sub.FormData
	if form == nil {
		form = domain.FormData{}
	}
	issues := sub.ValidationErrors
	if issues == nil {
		issues = []domain.ValidationIssue{}
	}
	return submissionResponse{
		ID:               sub.ID,
		BuildingID:       sub.BuildingID,
		FormType:         sub.FormType,
		TaxYear:          sub.TaxYear,
		Status:           string(sub.Status),
		Terminal:         sub.Status.Terminal(),
		FormData:         form,
		XMLPayload:       sub.XMLPayload,
		ConfidenceScore:  sub.ConfidenceScore,
		ValidationErrors: issues,
		TransferTicket:   sub.TransferTicket,
		SubmissionMode:   string(sub.Mode),
		LegalForm:        sub.LegalForm,
		Owner:            sub.Owner,
		CreatedAt:        sub.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        sub.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func buildBackupResponse(snap domain.BackupSnapshot, withData bool) backupResponse {
	out := backupResponse{
		ID:            snap.ID,
		OriginalID:    snap.SourceID,
		SourceKind:    string(snap.SourceKind),
		Timestamp:     snap.CapturedAt.UTC().Format(time.RFC3339Nano),
		Reason:        snap.Reason,
		By:            snap.CapturedBy,
		ImmutableHash: snap.ImmutableHash,
	}
	if withData {
		out.Data = snap.Payload
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	var details map[string]any
	var conflict *domain.ConflictError
	var refused *domain.RefusedError
	switch {
	case errors.As(err, &conflict):
		status, code = http.StatusConflict, "DUPLICATE_SUBMISSION"
		if conflict.ExistingID != "" {
			details = map[string]any{"existing_id": conflict.ExistingID}
		}
	case errors.As(err, &refused):
		status, code = http.StatusConflict, "GATEWAY_REFUSED"
	case isTransition(err):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrTransient):
		status, code = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, domain.ErrIntegrity):
		code = "INTEGRITY_FAILED"
	}
	c.JSON(status, errorResponse{Code: code, Message: err.Error(), Details: details})
}

func isTransition(err error) bool {
	_, ok := domain.IsTransitionError(err)
	return ok
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
