// Package gateway talks to the tax authority transmission gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vermietify/internal/config"
	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/cenkalti/backoff/v4"
)

type Client struct {
	endpoint      string
	apiKey        string
	httpClient    *http.Client
	statusBackoff func() backoff.BackOff
}

func New(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		statusBackoff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 500 * time.Millisecond
			policy.MaxElapsedTime = 30 * time.Second
			return policy
		},
	}
}

func NewFromConfig(cfg config.Config) (*Client, error) {
	if cfg.GatewayURL == "" {
		return nil, errors.New("GATEWAY_URL is required")
	}
	return New(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout), nil
}

type submitRequest struct {
	XML  string `json:"xml"`
	Mode string `json:"mode"`
}

type submitResponse struct {
	Accepted       bool   `json:"accepted"`
	TransferTicket string `json:"transfer_ticket"`
	Error          string `json:"error"`
}

type statusResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// Submit is sent exactly once; the caller owns retry decisions because a
// transmission that timed out may still have been received.
func (c *Client) Submit(ctx context.Context, xmlPayload string, mode domain.SubmissionMode) (usecase.TransmissionResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/transmissions", submitRequest{XML: xmlPayload, Mode: string(mode)})
	if err != nil {
		return usecase.TransmissionResult{}, &domain.GatewayError{Op: "submit", Err: err}
	}
	var resp submitResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil && status < 300 {
			return usecase.TransmissionResult{}, &domain.GatewayError{Op: "submit", StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	switch {
	case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return usecase.TransmissionResult{}, &domain.GatewayError{Op: "submit", StatusCode: status, Err: errors.New(orDefault(resp.Error, http.StatusText(status)))}
	case status >= 400:
		return usecase.TransmissionResult{Accepted: false, Error: orDefault(resp.Error, http.StatusText(status))}, nil
	}
	return usecase.TransmissionResult{
		Accepted:       resp.Accepted,
		TransferTicket: resp.TransferTicket,
		Error:          resp.Error,
	}, nil
}

// Status is idempotent and retried with backoff on transient failures.
func (c *Client) Status(ctx context.Context, ticket string, mode domain.SubmissionMode) (usecase.OutcomeResult, error) {
	if ticket == "" {
		return usecase.OutcomeResult{}, fmt.Errorf("transfer ticket is required: %w", domain.ErrInvalidArgument)
	}
	path := "/v1/transmissions/" + url.PathEscape(ticket) + "?mode=" + url.QueryEscape(string(mode))
	var out usecase.OutcomeResult
	operation := func() error {
		status, body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return &domain.GatewayError{Op: "status", Err: err}
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			return &domain.GatewayError{Op: "status", StatusCode: status, Err: errors.New(http.StatusText(status))}
		}
		if status == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("transfer ticket %s: %w", ticket, domain.ErrNotFound))
		}
		if status >= 400 {
			return backoff.Permanent(&domain.GatewayError{Op: "status", StatusCode: status, Err: errors.New(http.StatusText(status))})
		}
		var resp statusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(&domain.GatewayError{Op: "status", StatusCode: status, Err: fmt.Errorf("decode response: %w", err)})
		}
		out = usecase.OutcomeResult{Outcome: parseOutcome(resp.Outcome), Message: resp.Message}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(c.statusBackoff(), ctx)); err != nil {
		return usecase.OutcomeResult{}, err
	}
	return out, nil
}

func parseOutcome(raw string) usecase.Outcome {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted":
		return usecase.OutcomeAccepted
	case "rejected":
		return usecase.OutcomeRejected
	}
	return usecase.OutcomePending
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	if c == nil || c.endpoint == "" {
		return 0, nil, errors.New("gateway client missing configuration")
	}
	var reader io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
