package domain

import (
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusAIProcessed Status = "AI_PROCESSED"
	StatusValidated   Status = "VALIDATED"
	StatusSubmitted   Status = "SUBMITTED"
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusArchived    Status = "ARCHIVED"
)

var allStatuses = []Status{
	StatusDraft,
	StatusAIProcessed,
	StatusValidated,
	StatusSubmitted,
	StatusAccepted,
	StatusRejected,
	StatusArchived,
}

func ParseStatus(raw string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusArchived
}

// Transmitted reports whether a submission in s must carry a transfer ticket.
func (s Status) Transmitted() bool {
	return s == StatusSubmitted || s == StatusAccepted || s == StatusRejected
}

type SubmissionMode string

const (
	ModeTest       SubmissionMode = "TEST"
	ModeProduction SubmissionMode = "PRODUCTION"
)

func ParseSubmissionMode(raw string) (SubmissionMode, bool) {
	switch SubmissionMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case ModeTest:
		return ModeTest, true
	case ModeProduction:
		return ModeProduction, true
	}
	return "", false
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type ValidationIssue struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// HasBlockingIssues reports whether any issue has error severity.
func HasBlockingIssues(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

type NaturalKey struct {
	BuildingID string
	FormType   string
	TaxYear    int
}

func (k NaturalKey) String() string {
	return k.BuildingID + "/" + k.FormType + "/" + strconv.Itoa(k.TaxYear)
}

// TransmissionClaim marks a VALIDATED submission whose gateway call is in flight.
type TransmissionClaim struct {
	Token     string
	ClaimedAt time.Time
}

func (c *TransmissionClaim) Live(now time.Time, ttl time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(c.ClaimedAt) < ttl
}

type Submission struct {
	ID               string
	BuildingID       string
	FormType         string
	TaxYear          int
	Status           Status
	FormData         FormData
	XMLPayload       string
	ConfidenceScore  *int
	ValidationErrors []ValidationIssue
	TransferTicket   string
	Mode             SubmissionMode
	LegalForm        string
	Owner            string
	Claim            *TransmissionClaim
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s Submission) Key() NaturalKey {
	return NaturalKey{BuildingID: s.BuildingID, FormType: s.FormType, TaxYear: s.TaxYear}
}

// Clone returns a deep copy safe to mutate without touching stored state.
func (s Submission) Clone() Submission {
	out := s
	out.FormData = s.FormData.Clone()
	if s.ConfidenceScore != nil {
		score := *s.ConfidenceScore
		out.ConfidenceScore = &score
	}
	if s.ValidationErrors != nil {
		out.ValidationErrors = append([]ValidationIssue(nil), s.ValidationErrors...)
	}
	if s.Claim != nil {
		claim := *s.Claim
		out.Claim = &claim
	}
	return out
}

// CheckInvariants verifies the ticket and confidence invariants of a stored record.
func (s Submission) CheckInvariants() error {
	if s.Status.Transmitted() != (s.TransferTicket != "") {
		return &InvariantError{SubmissionID: s.ID, Reason: "transfer_ticket must be set iff status is SUBMITTED, ACCEPTED or REJECTED"}
	}
	if s.Status == StatusDraft && s.ConfidenceScore != nil {
		return &InvariantError{SubmissionID: s.ID, Reason: "confidence_score must be unset before AI processing"}
	}
	if s.ConfidenceScore != nil && (*s.ConfidenceScore < 0 || *s.ConfidenceScore > 100) {
		return &InvariantError{SubmissionID: s.ID, Reason: "confidence_score out of range"}
	}
	return nil
}

type SubmissionFilter struct {
	Statuses   []Status
	BuildingID string
	FormType   string
	TaxYear    int
	Owner      string
	Limit      int
}

func (f SubmissionFilter) Matches(s Submission) bool {
	if len(f.Statuses) > 0 {
		matched := false
		for _, status := range f.Statuses {
			if s.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.BuildingID != "" && s.BuildingID != f.BuildingID {
		return false
	}
	if f.FormType != "" && s.FormType != f.FormType {
		return false
	}
	if f.TaxYear != 0 && s.TaxYear != f.TaxYear {
		return false
	}
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	return true
}

// Document renders the submission as the flat document shape persisted by backups and exports.
func (s Submission) Document() map[string]any {
	doc := map[string]any{
		"id":                s.ID,
		"building_id":       s.BuildingID,
		"form_type":         s.FormType,
		"tax_year":          s.TaxYear,
		"status":            string(s.Status),
		"form_data":         s.FormData.Map(),
		"submission_mode":   string(s.Mode),
		"legal_form":        s.LegalForm,
		"owner":             s.Owner,
		"created_at":        s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        s.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"validation_errors": issuesDocument(s.ValidationErrors),
	}
	if s.XMLPayload != "" {
		doc["xml_payload"] = s.XMLPayload
	}
	if s.ConfidenceScore != nil {
		doc["confidence_score"] = *s.ConfidenceScore
	}
	if s.TransferTicket != "" {
		doc["transfer_ticket"] = s.TransferTicket
	}
	return doc
}

func issuesDocument(issues []ValidationIssue) []any {
	out := make([]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, map[string]any{
			"field":    issue.Field,
			"message":  issue.Message,
			"severity": string(issue.Severity),
		})
	}
	return out
}
