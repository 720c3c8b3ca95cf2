package domain

// QueueView is derived on demand. Buckets are independent views; one submission may appear in several.
type QueueView struct {
	ReadyForValidation []QueueEntry `json:"ready_for_validation"`
	ReadyForSubmission []QueueEntry `json:"ready_for_submission"`
	Priority           []QueueEntry `json:"priority"`
	Stalled            []QueueEntry `json:"stalled"`
}

type QueueEntry struct {
	SubmissionID      string `json:"submission_id"`
	BuildingID        string `json:"building_id"`
	FormType          string `json:"form_type"`
	TaxYear           int    `json:"tax_year"`
	Status            Status `json:"status"`
	DaysUntilDeadline *int   `json:"days_until_deadline,omitempty"`
	AgeDays           int    `json:"age_days"`
}
