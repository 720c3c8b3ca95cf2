package usecase

import (
	"reflect"
	"testing"
	"time"

	"vermietify/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestClassifyQueues_Buckets(t *testing.T) {
	now := time.Date(2026, 7, 10, 9, 30, 0, 0, time.UTC)
	subs := []domain.Submission{
		{ID: "ai-clean", Status: domain.StatusAIProcessed, TaxYear: 2025, CreatedAt: now.AddDate(0, 0, -3)},
		{ID: "ai-issues", Status: domain.StatusAIProcessed, TaxYear: 2025, CreatedAt: now.AddDate(0, 0, -3),
			ValidationErrors: []domain.ValidationIssue{{Field: "x", Message: "y", Severity: domain.SeverityWarning}}},
		{ID: "validated", Status: domain.StatusValidated, TaxYear: 2025, CreatedAt: now.AddDate(0, 0, -2)},
		{ID: "submitted", Status: domain.StatusSubmitted, TaxYear: 2025, TransferTicket: "T", CreatedAt: now.AddDate(0, 0, -2)},
		{ID: "draft-near", Status: domain.StatusDraft, TaxYear: 2025, FormType: "anlage_v", CreatedAt: now.AddDate(0, 0, -5)},
		{ID: "draft-old-near", Status: domain.StatusDraft, TaxYear: 2025, FormType: "anlage_v", CreatedAt: now.AddDate(0, 0, -90)},
		{ID: "draft-old-year", Status: domain.StatusDraft, TaxYear: 2024, FormType: "anlage_v", CreatedAt: now.AddDate(0, 0, -61)},
		{ID: "draft-edge", Status: domain.StatusDraft, TaxYear: 2024, CreatedAt: now.AddDate(0, 0, -60)},
	}

	view := ClassifyQueues(subs, now, DefaultQueuePolicy())

	require.Equal(t, []string{"ai-clean"}, entryIDs(view.ReadyForValidation))
	require.Equal(t, []string{"validated"}, entryIDs(view.ReadyForSubmission))
	require.Equal(t, []string{"draft-old-near", "draft-near"}, entryIDs(view.Priority))
	require.Equal(t, 21, *view.Priority[0].DaysUntilDeadline)
	require.Equal(t, []string{"draft-old-near", "draft-old-year"}, entryIDs(view.Stalled))
}

func TestClassifyQueues_PriorityWindow(t *testing.T) {
	policy := DefaultQueuePolicy()
	sub := domain.Submission{ID: "d", Status: domain.StatusDraft, TaxYear: 2025, FormType: "anlage_v"}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "31 days out", now: time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC), want: false},
		{name: "30 days out", now: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), want: true},
		{name: "1 day out", now: time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC), want: true},
		{name: "deadline day", now: time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC), want: false},
		{name: "past deadline", now: time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sub
			s.CreatedAt = tc.now
			view := ClassifyQueues([]domain.Submission{s}, tc.now, policy)
			require.Equal(t, tc.want, len(view.Priority) == 1)
		})
	}
}

func TestClassifyQueues_PerFormDeadline(t *testing.T) {
	policy := DefaultQueuePolicy()
	policy.Deadlines = map[string]MonthDay{"ust_jahr": {Month: time.May, Day: 31}}
	now := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	subs := []domain.Submission{
		{ID: "ust", Status: domain.StatusDraft, TaxYear: 2025, FormType: "UST_JAHR", CreatedAt: now},
		{ID: "v", Status: domain.StatusDraft, TaxYear: 2025, FormType: "anlage_v", CreatedAt: now},
	}
	view := ClassifyQueues(subs, now, policy)
	require.Equal(t, []string{"ust"}, entryIDs(view.Priority))
	require.Equal(t, 11, *view.Priority[0].DaysUntilDeadline)
}

func TestClassifyQueues_TaxYearFromUTCDay(t *testing.T) {
	policy := DefaultQueuePolicy()
	policy.DefaultDeadline = MonthDay{Month: time.January, Day: 10}
	newYork := time.FixedZone("EST", -5*60*60)
	// Still Dec 31 locally, already Jan 1 in UTC.
	now := time.Date(2026, 12, 31, 23, 30, 0, 0, newYork)
	subs := []domain.Submission{
		{ID: "current", Status: domain.StatusDraft, TaxYear: 2026, FormType: "other", CreatedAt: now},
		{ID: "stale", Status: domain.StatusDraft, TaxYear: 2025, FormType: "other", CreatedAt: now},
	}
	view := ClassifyQueues(subs, now, policy)
	require.Equal(t, []string{"current"}, entryIDs(view.Priority))
	require.Equal(t, 9, *view.Priority[0].DaysUntilDeadline)
}

func TestClassifyQueues_Deterministic(t *testing.T) {
	now := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -100)
	subs := []domain.Submission{
		{ID: "c", Status: domain.StatusDraft, TaxYear: 2025, CreatedAt: created},
		{ID: "a", Status: domain.StatusDraft, TaxYear: 2025, CreatedAt: created},
		{ID: "b", Status: domain.StatusValidated, CreatedAt: created},
	}
	first := ClassifyQueues(subs, now, DefaultQueuePolicy())
	reversed := []domain.Submission{subs[2], subs[1], subs[0]}
	for i := 0; i < 5; i++ {
		again := ClassifyQueues(reversed, now, DefaultQueuePolicy())
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("classification not deterministic: %+v vs %+v", first, again)
		}
	}
	require.Equal(t, []string{"a", "c"}, entryIDs(first.Stalled))
}

func entryIDs(entries []domain.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SubmissionID)
	}
	return out
}

func TestParseDeadlines(t *testing.T) {
	table, err := ParseDeadlines(map[string]string{"Anlage_V": "05-31", "ust": " 02-28 "})
	require.NoError(t, err)
	require.Equal(t, MonthDay{Month: time.May, Day: 31}, table["anlage_v"])
	require.Equal(t, MonthDay{Month: time.February, Day: 28}, table["ust"])

	_, err = ParseDeadlines(map[string]string{"x": "31.05."})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = ParseMonthDay("13-01")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
