package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"vermietify/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MigrationRules decide which form fields are period-bound and which are
// derived aggregates. Matching is on the lowercased field name.
type MigrationRules struct {
	PeriodMarkers   []string
	PeriodSuffix    []string
	AggregatePrefix []string
	AggregateSuffix []string
	AggregateExact  []string
}

func DefaultMigrationRules() MigrationRules {
	return MigrationRules{
		PeriodMarkers:   []string{"period", "zeitraum"},
		PeriodSuffix:    []string{"_start", "_end", "_from", "_to", "_beginn", "_ende", "_von", "_bis"},
		AggregatePrefix: []string{"total_", "sum_", "summe_"},
		AggregateSuffix: []string{"_total", "_sum", "_summe"},
		AggregateExact:  []string{"annual_total", "total", "summe", "jahressumme"},
	}
}

func (r MigrationRules) IsPeriodField(name string) bool {
	n := strings.ToLower(name)
	for _, marker := range r.PeriodMarkers {
		if strings.Contains(n, marker) {
			return true
		}
	}
	for _, suffix := range r.PeriodSuffix {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

func (r MigrationRules) IsAggregateField(name string) bool {
	n := strings.ToLower(name)
	for _, exact := range r.AggregateExact {
		if n == exact {
			return true
		}
	}
	for _, prefix := range r.AggregatePrefix {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	for _, suffix := range r.AggregateSuffix {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

var (
	germanDate = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	isoDate    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	bareYear   = regexp.MustCompile(`^\d{4}$`)
)

// ShiftPeriodValue moves a dd.mm.yyyy, yyyy-mm-dd or bare yyyy string by
// delta years. Feb 29 becomes Feb 28 in a non-leap target year.
func ShiftPeriodValue(value any, delta int) (any, bool) {
	if v, ok := value.(string); ok {
		s := strings.TrimSpace(v)
		if m := germanDate.FindStringSubmatch(s); m != nil {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			day = clampDay(year+delta, month, day)
			return fmt.Sprintf("%0*d.%0*d.%04d", len(m[1]), day, len(m[2]), month, year+delta), true
		}
		if m := isoDate.FindStringSubmatch(s); m != nil {
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			day = clampDay(year+delta, month, day)
			return fmt.Sprintf("%04d-%02d-%02d", year+delta, month, day), true
		}
		if bareYear.MatchString(s) {
			year, _ := strconv.Atoi(s)
			return strconv.Itoa(year + delta), true
		}
	}
	return value, false
}

// PeriodYear returns the year component of a value ShiftPeriodValue accepts.
func PeriodYear(value any) (int, bool) {
	v, ok := value.(string)
	if !ok {
		return 0, false
	}
	s := strings.TrimSpace(v)
	var raw string
	switch {
	case germanDate.MatchString(s):
		raw = germanDate.FindStringSubmatch(s)[3]
	case isoDate.MatchString(s):
		raw = isoDate.FindStringSubmatch(s)[1]
	case bareYear.MatchString(s):
		raw = s
	default:
		return 0, false
	}
	year, err := strconv.Atoi(raw)
	return year, err == nil
}

// periodShift is the year offset that moves the earliest period date in form
// into targetYear. Periods spanning a year boundary keep their length.
func (r MigrationRules) periodShift(form domain.FormData, targetYear int) (int, bool) {
	base, found := 0, false
	for _, field := range form {
		if !r.IsPeriodField(field.Name) || r.IsAggregateField(field.Name) {
			continue
		}
		if year, ok := PeriodYear(field.Value); ok && (!found || year < base) {
			base, found = year, true
		}
	}
	return targetYear - base, found
}

func clampDay(year, month, day int) int {
	if month < 1 || month > 12 {
		return day
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

type MigrationResult struct {
	Source    domain.Submission
	Target    domain.Submission
	Rewritten []string
	Stripped  []string
}

type YearMigrator struct {
	Submissions SubmissionRepository
	Rules       MigrationRules
	Clock       func() time.Time
	Logger      *zap.Logger
}

func NewYearMigrator(submissions SubmissionRepository) *YearMigrator {
	return &YearMigrator{
		Submissions: submissions,
		Rules:       DefaultMigrationRules(),
		Clock:       time.Now,
		Logger:      zap.NewNop(),
	}
}

// Migrate clones the source's form into a new DRAFT for targetYear. It fails
// with a conflict if a non-archived submission already holds the target key.
func (m *YearMigrator) Migrate(ctx context.Context, sourceID string, targetYear int, actor string) (MigrationResult, error) {
	if err := checkTaxYear(targetYear); err != nil {
		return MigrationResult{}, err
	}
	actor = actorOrSystem(actor)
	source, err := m.Submissions.Get(ctx, sourceID)
	if err != nil {
		return MigrationResult{}, err
	}
	if source.TaxYear == targetYear {
		return MigrationResult{}, fmt.Errorf("target year equals source year %d: %w", targetYear, domain.ErrInvalidArgument)
	}
	key := domain.NaturalKey{BuildingID: source.BuildingID, FormType: source.FormType, TaxYear: targetYear}
	existing, err := m.Submissions.FindActiveByKey(ctx, key)
	switch {
	case err == nil:
		return MigrationResult{}, &domain.ConflictError{Key: key, ExistingID: existing.ID}
	case !errors.Is(err, domain.ErrNotFound):
		return MigrationResult{}, err
	}

	delta, hasPeriod := m.Rules.periodShift(source.FormData, targetYear)
	var rewritten, stripped []string
	form := make(domain.FormData, 0, len(source.FormData))
	for _, field := range source.FormData {
		if m.Rules.IsAggregateField(field.Name) {
			stripped = append(stripped, field.Name)
			continue
		}
		if hasPeriod && m.Rules.IsPeriodField(field.Name) {
			if shifted, ok := ShiftPeriodValue(field.Value, delta); ok {
				field.Value = shifted
				rewritten = append(rewritten, field.Name)
			}
		}
		form = append(form, field)
	}

	now := m.now()
	target := domain.Submission{
		ID:         uuid.NewString(),
		BuildingID: source.BuildingID,
		FormType:   source.FormType,
		TaxYear:    targetYear,
		Status:     domain.StatusDraft,
		FormData:   form,
		Mode:       source.Mode,
		LegalForm:  source.LegalForm,
		Owner:      actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := m.Submissions.Create(ctx, target, domain.AuditEvent{
		EntityID:  target.ID,
		Action:    domain.ActionMigrated,
		Actor:     actor,
		Timestamp: now,
		Detail: map[string]any{
			"migrated_from":    source.ID,
			"source_tax_year":  source.TaxYear,
			"target_tax_year":  targetYear,
			"rewritten_fields": stringsOrEmpty(rewritten),
			"stripped_fields":  stringsOrEmpty(stripped),
			"to":               string(domain.StatusDraft),
		},
	})
	if err != nil {
		return MigrationResult{}, err
	}
	m.logger().Info("submission migrated",
		zap.String("source_id", source.ID),
		zap.String("submission_id", created.ID),
		zap.Int("target_year", targetYear),
		zap.Strings("stripped", stripped),
	)
	return MigrationResult{Source: source, Target: created, Rewritten: rewritten, Stripped: stripped}, nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (m *YearMigrator) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock().UTC()
}

func (m *YearMigrator) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}
