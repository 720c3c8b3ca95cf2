package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vermietify/internal/domain"
	cryptoinfra "vermietify/internal/infra/crypto"
	"vermietify/internal/infra/memstore"
	"vermietify/internal/usecase"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	err      error
	refuse   string
	delay    time.Duration
	outcomes map[string]usecase.Outcome
}

func (g *fakeGateway) Submit(ctx context.Context, xmlPayload string, mode domain.SubmissionMode) (usecase.TransmissionResult, error) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return usecase.TransmissionResult{}, g.err
	}
	if g.refuse != "" {
		return usecase.TransmissionResult{Accepted: false, Error: g.refuse}, nil
	}
	return usecase.TransmissionResult{Accepted: true, TransferTicket: fmt.Sprintf("TT-%s-%d", mode, g.calls)}, nil
}

func (g *fakeGateway) Status(ctx context.Context, ticket string, mode domain.SubmissionMode) (usecase.OutcomeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	outcome, ok := g.outcomes[ticket]
	if !ok {
		return usecase.OutcomeResult{Outcome: usecase.OutcomePending}, nil
	}
	return usecase.OutcomeResult{Outcome: outcome, Message: "verdict for " + ticket}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeDrafter struct {
	score  int
	issues []domain.ValidationIssue
	err    error
}

func (d *fakeDrafter) Draft(ctx context.Context, input usecase.DraftInput) (usecase.DraftResult, error) {
	if d.err != nil {
		return usecase.DraftResult{}, d.err
	}
	form := input.FormData.Clone()
	form = form.Set("period_start", fmt.Sprintf("01.01.%d", input.TaxYear))
	form = form.Set("period_end", fmt.Sprintf("31.12.%d", input.TaxYear))
	form = form.Set("rental_income", int64(12000))
	return usecase.DraftResult{FormData: form, ConfidenceScore: d.score, ValidationErrors: d.issues}, nil
}

type staticRenderer struct{}

func (staticRenderer) Render(sub domain.Submission) (string, error) {
	return "<Submission id=\"" + sub.ID + "\"/>", nil
}

type issueValidator struct {
	issues []domain.ValidationIssue
}

func (v issueValidator) Validate(ctx context.Context, sub domain.Submission) ([]domain.ValidationIssue, error) {
	return v.issues, nil
}

type harness struct {
	store    *memstore.Store
	engine   *usecase.Engine
	audit    *usecase.AuditRecorder
	backups  *usecase.BackupService
	migrator *usecase.YearMigrator
	gateway  *fakeGateway
	drafter  *fakeDrafter
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(),
		gateway: &fakeGateway{outcomes: map[string]usecase.Outcome{}},
		drafter: &fakeDrafter{score: 92},
		now:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	canon := cryptoinfra.NewService()

	subs := h.store.Submissions()
	events := h.store.Audit()
	snaps := h.store.Backups()
	registry, err := usecase.NewRegistry(subs, events, snaps)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	h.audit = usecase.NewAuditRecorder(events, subs, canon, nil)
	h.audit.Clock = clock
	h.backups = usecase.NewBackupService(snaps, h.audit, registry, canon)
	h.backups.Clock = clock

	h.engine = usecase.NewEngine(subs, h.gateway, usecase.NewGate(usecase.DefaultThresholds()))
	h.engine.Backups = h.backups
	h.engine.Drafter = h.drafter
	h.engine.Renderer = staticRenderer{}
	h.engine.Clock = clock

	h.migrator = usecase.NewYearMigrator(subs)
	h.migrator.Clock = clock
	return h
}

func (h *harness) create(t *testing.T, building string, year int) domain.Submission {
	t.Helper()
	sub, err := h.engine.Create(context.Background(), usecase.CreateInput{
		BuildingID: building,
		FormType:   "anlage_v",
		TaxYear:    year,
		FormData:   domain.FormData{{Name: "building_name", Value: "Hauptstr. 1"}},
		Actor:      "operator@example.com",
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return sub
}

// validatedSubmission walks a new submission to VALIDATED with the given score.
func (h *harness) validatedSubmission(t *testing.T, building string, score int) domain.Submission {
	t.Helper()
	sub := h.create(t, building, 2025)
	h.drafter.score = score
	if _, err := h.engine.Process(context.Background(), sub.ID, "operator@example.com"); err != nil {
		t.Fatalf("process: %v", err)
	}
	out, err := h.engine.Validate(context.Background(), sub.ID, "operator@example.com")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return out
}

func (h *harness) actions(t *testing.T, entityID string) []domain.AuditAction {
	t.Helper()
	events, err := h.audit.Trail(context.Background(), entityID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	out := make([]domain.AuditAction, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

var errGatewayDown = errors.New("connection reset")
