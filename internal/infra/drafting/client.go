// Package drafting holds the collaborators of the processing and validation
// steps: the AI drafting service client, the schema rule pass and the XML
// payload renderer.
package drafting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	endpoint   string
	httpClient *http.Client
	retry      func() backoff.BackOff
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

type draftRequest struct {
	SubmissionID string          `json:"submission_id"`
	BuildingID   string          `json:"building_id"`
	FormType     string          `json:"form_type"`
	TaxYear      int             `json:"tax_year"`
	LegalForm    string          `json:"legal_form,omitempty"`
	FormData     domain.FormData `json:"form_data"`
}

type draftResponse struct {
	FormData         domain.FormData          `json:"form_data"`
	ConfidenceScore  *int                     `json:"confidence_score"`
	ValidationErrors []domain.ValidationIssue `json:"validation_errors"`
}

func (c *Client) Draft(ctx context.Context, input usecase.DraftInput) (usecase.DraftResult, error) {
	if c == nil || c.endpoint == "" {
		return usecase.DraftResult{}, errors.New("drafting client missing configuration")
	}
	payload, err := json.Marshal(draftRequest{
		SubmissionID: input.SubmissionID,
		BuildingID:   input.BuildingID,
		FormType:     input.FormType,
		TaxYear:      input.TaxYear,
		LegalForm:    input.LegalForm,
		FormData:     input.FormData,
	})
	if err != nil {
		return usecase.DraftResult{}, err
	}
	var resp draftResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/drafts", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
		if err != nil {
			return err
		}
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("drafting service status %d", res.StatusCode)
		}
		if res.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("drafting service status %d: %w", res.StatusCode, domain.ErrInvalidArgument))
		}
		resp = draftResponse{}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode draft: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(c.retry(), ctx)); err != nil {
		return usecase.DraftResult{}, err
	}
	if resp.ConfidenceScore == nil {
		return usecase.DraftResult{}, fmt.Errorf("draft has no confidence_score: %w", domain.ErrInvalidArgument)
	}
	return usecase.DraftResult{
		FormData:         resp.FormData,
		ConfidenceScore:  *resp.ConfidenceScore,
		ValidationErrors: resp.ValidationErrors,
	}, nil
}
