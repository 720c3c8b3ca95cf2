package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vermietify/internal/domain"
)

const (
	DefaultPriorityWindowDays = 30
	DefaultStalledAfterDays   = 60
)

// MonthDay is a statutory deadline relative to the year after the tax year.
type MonthDay struct {
	Month time.Month
	Day   int
}

var DefaultDeadline = MonthDay{Month: time.July, Day: 31}

// ParseMonthDay reads a deadline written as "MM-DD".
func ParseMonthDay(raw string) (MonthDay, error) {
	t, err := time.Parse("01-02", strings.TrimSpace(raw))
	if err != nil {
		return MonthDay{}, fmt.Errorf("deadline %q must be MM-DD: %w", raw, domain.ErrInvalidArgument)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

// ParseDeadlines converts a form_type -> "MM-DD" table into a deadline table.
func ParseDeadlines(raw map[string]string) (map[string]MonthDay, error) {
	out := make(map[string]MonthDay, len(raw))
	for formType, value := range raw {
		md, err := ParseMonthDay(value)
		if err != nil {
			return nil, fmt.Errorf("form type %s: %w", formType, err)
		}
		out[strings.ToLower(strings.TrimSpace(formType))] = md
	}
	return out, nil
}

type QueuePolicy struct {
	PriorityWindowDays int
	StalledAfterDays   int
	Deadlines          map[string]MonthDay
	DefaultDeadline    MonthDay
}

func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		PriorityWindowDays: DefaultPriorityWindowDays,
		StalledAfterDays:   DefaultStalledAfterDays,
		DefaultDeadline:    DefaultDeadline,
	}
}

// Deadline returns the filing deadline for a form type and tax year, at midnight UTC.
func (p QueuePolicy) Deadline(formType string, taxYear int) time.Time {
	md, ok := p.Deadlines[strings.ToLower(strings.TrimSpace(formType))]
	if !ok {
		md = p.DefaultDeadline
	}
	if md.Month == 0 || md.Day == 0 {
		md = DefaultDeadline
	}
	return time.Date(taxYear+1, md.Month, md.Day, 0, 0, 0, 0, time.UTC)
}

// ClassifyQueues derives the operator work buckets from a snapshot of
// submissions. It reads nothing but its arguments; equal inputs give equal output.
func ClassifyQueues(subs []domain.Submission, now time.Time, policy QueuePolicy) domain.QueueView {
	if policy.PriorityWindowDays <= 0 {
		policy.PriorityWindowDays = DefaultPriorityWindowDays
	}
	if policy.StalledAfterDays <= 0 {
		policy.StalledAfterDays = DefaultStalledAfterDays
	}
	today := startOfDay(now)
	view := domain.QueueView{
		ReadyForValidation: []domain.QueueEntry{},
		ReadyForSubmission: []domain.QueueEntry{},
		Priority:           []domain.QueueEntry{},
		Stalled:            []domain.QueueEntry{},
	}

	ordered := make([]domain.Submission, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, sub := range ordered {
		entry := domain.QueueEntry{
			SubmissionID: sub.ID,
			BuildingID:   sub.BuildingID,
			FormType:     sub.FormType,
			TaxYear:      sub.TaxYear,
			Status:       sub.Status,
			AgeDays:      int(now.Sub(sub.CreatedAt) / (24 * time.Hour)),
		}
		switch sub.Status {
		case domain.StatusAIProcessed:
			if len(sub.ValidationErrors) == 0 {
				view.ReadyForValidation = append(view.ReadyForValidation, entry)
			}
		case domain.StatusValidated:
			if sub.TransferTicket == "" {
				view.ReadyForSubmission = append(view.ReadyForSubmission, entry)
			}
		case domain.StatusDraft:
			if sub.TaxYear == today.Year()-1 {
				days := int(policy.Deadline(sub.FormType, sub.TaxYear).Sub(today) / (24 * time.Hour))
				if days > 0 && days <= policy.PriorityWindowDays {
					withDeadline := entry
					withDeadline.DaysUntilDeadline = &days
					view.Priority = append(view.Priority, withDeadline)
				}
			}
			if entry.AgeDays > policy.StalledAfterDays {
				view.Stalled = append(view.Stalled, entry)
			}
		}
	}

	sort.SliceStable(view.Priority, func(i, j int) bool {
		return *view.Priority[i].DaysUntilDeadline < *view.Priority[j].DaysUntilDeadline
	})
	return view
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
