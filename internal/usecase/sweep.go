package usecase

import (
	"context"
	"fmt"
	"time"

	"vermietify/internal/domain"

	"go.uber.org/zap"
)

type SweepItem struct {
	SubmissionID string `json:"submission_id"`
	Reason       string `json:"reason"`
}

type SweepReport struct {
	Now       time.Time   `json:"now"`
	Scanned   int         `json:"scanned"`
	Submitted []string    `json:"submitted"`
	Withheld  []SweepItem `json:"withheld"`
	Skipped   []SweepItem `json:"skipped"`
	Failed    []SweepItem `json:"failed"`
}

// Sweep is one stateless scan-and-act pass: every VALIDATED submission that
// passes the confidence gate is transmitted as the system actor. now labels
// the report; claims and audit timestamps use the engine clock.
// A failure on one submission never stops the pass.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{
		Now:       now.UTC(),
		Submitted: []string{},
		Withheld:  []SweepItem{},
		Skipped:   []SweepItem{},
		Failed:    []SweepItem{},
	}
	candidates, err := e.Submissions.List(ctx, domain.SubmissionFilter{Statuses: []domain.Status{domain.StatusValidated}})
	if err != nil {
		return report, err
	}
	report.Scanned = len(candidates)
	for _, sub := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if reason := e.Gate.Evaluate(sub); reason != "" {
			report.Withheld = append(report.Withheld, SweepItem{SubmissionID: sub.ID, Reason: reason})
			continue
		}
		if sub.Claim.Live(e.now(), e.claimTTL()) {
			report.Skipped = append(report.Skipped, SweepItem{SubmissionID: sub.ID, Reason: "transmission already in flight"})
			continue
		}
		if _, err := e.submit(ctx, sub.ID, domain.ActorSystem, true); err != nil {
			if te, ok := domain.IsTransitionError(err); ok {
				report.Skipped = append(report.Skipped, SweepItem{SubmissionID: sub.ID, Reason: te.Reason})
				continue
			}
			report.Failed = append(report.Failed, SweepItem{SubmissionID: sub.ID, Reason: err.Error()})
			continue
		}
		report.Submitted = append(report.Submitted, sub.ID)
	}
	e.metrics().SweepCompleted(ctx, len(report.Submitted), len(report.Withheld), len(report.Failed))
	e.logger().Info("sweep completed",
		zap.Time("now", report.Now),
		zap.Int("scanned", report.Scanned),
		zap.Int("submitted", len(report.Submitted)),
		zap.Int("withheld", len(report.Withheld)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

type PollReport struct {
	Checked  int         `json:"checked"`
	Accepted []string    `json:"accepted"`
	Rejected []string    `json:"rejected"`
	Pending  []string    `json:"pending"`
	Failed   []SweepItem `json:"failed"`
}

// PollOutcomes asks the gateway for the verdict on every SUBMITTED submission.
func (e *Engine) PollOutcomes(ctx context.Context, now time.Time) (PollReport, error) {
	report := PollReport{Accepted: []string{}, Rejected: []string{}, Pending: []string{}, Failed: []SweepItem{}}
	if e.Gateway == nil {
		return report, fmt.Errorf("gateway not configured: %w", domain.ErrInternal)
	}
	subs, err := e.Submissions.List(ctx, domain.SubmissionFilter{Statuses: []domain.Status{domain.StatusSubmitted}})
	if err != nil {
		return report, err
	}
	report.Checked = len(subs)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := e.Gateway.Status(ctx, sub.TransferTicket, sub.Mode)
		if err != nil {
			e.metrics().GatewayFailure(ctx, "status")
			report.Failed = append(report.Failed, SweepItem{SubmissionID: sub.ID, Reason: err.Error()})
			continue
		}
		switch outcome.Outcome {
		case OutcomeAccepted, OutcomeRejected:
			accepted := outcome.Outcome == OutcomeAccepted
			if _, err := e.RecordOutcome(ctx, sub.ID, accepted, outcome.Message, domain.ActorSystem); err != nil {
				report.Failed = append(report.Failed, SweepItem{SubmissionID: sub.ID, Reason: err.Error()})
				continue
			}
			if accepted {
				report.Accepted = append(report.Accepted, sub.ID)
			} else {
				report.Rejected = append(report.Rejected, sub.ID)
			}
		default:
			report.Pending = append(report.Pending, sub.ID)
		}
	}
	e.logger().Info("outcome poll completed",
		zap.Time("now", now.UTC()),
		zap.Int("checked", report.Checked),
		zap.Int("accepted", len(report.Accepted)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}
