package usecase

import (
	"strings"

	"vermietify/internal/domain"
)

const DefaultAutoSubmitMinConfidence = 85

// Thresholds holds the minimum confidence for automatic transmission, with
// optional per-form-type overrides.
type Thresholds struct {
	AutoSubmitMinConfidence int
	PerFormType             map[string]int
}

func DefaultThresholds() Thresholds {
	return Thresholds{AutoSubmitMinConfidence: DefaultAutoSubmitMinConfidence}
}

func (t Thresholds) For(formType string) int {
	if v, ok := t.PerFormType[strings.ToLower(strings.TrimSpace(formType))]; ok {
		return v
	}
	if t.AutoSubmitMinConfidence <= 0 {
		return DefaultAutoSubmitMinConfidence
	}
	return t.AutoSubmitMinConfidence
}

// Gate withholds automation; it never changes a submission.
type Gate struct {
	Thresholds Thresholds
}

func NewGate(thresholds Thresholds) Gate {
	return Gate{Thresholds: thresholds}
}

func (g Gate) CanAutoSubmit(sub domain.Submission) bool {
	return g.Evaluate(sub) == ""
}

// Evaluate returns the first reason sub may not auto-submit, or "" when it may.
func (g Gate) Evaluate(sub domain.Submission) string {
	switch {
	case sub.Status != domain.StatusValidated:
		return "status is not VALIDATED"
	case domain.HasBlockingIssues(sub.ValidationErrors):
		return "validation errors present"
	case sub.ConfidenceScore == nil:
		return "confidence score missing"
	case *sub.ConfidenceScore < g.Thresholds.For(sub.FormType):
		return "confidence below threshold"
	case sub.TransferTicket != "":
		return "already transmitted"
	}
	return ""
}

// CanAutoSubmit is the gate as a plain function over a threshold set.
func CanAutoSubmit(sub domain.Submission, thresholds Thresholds) bool {
	return NewGate(thresholds).CanAutoSubmit(sub)
}
