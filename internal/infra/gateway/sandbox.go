package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for TEST mode and local runs. It refuses
// payloads that are not well-formed XML and accepts every issued ticket on the
// first status poll.
type Sandbox struct {
	mu      sync.Mutex
	tickets map[string]usecase.Outcome
	Reject  func(xmlPayload string) string
}

func NewSandbox() *Sandbox {
	return &Sandbox{tickets: map[string]usecase.Outcome{}}
}

func (s *Sandbox) Submit(ctx context.Context, xmlPayload string, mode domain.SubmissionMode) (usecase.TransmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return usecase.TransmissionResult{}, &domain.GatewayError{Op: "submit", Err: err}
	}
	if mode == domain.ModeProduction {
		return usecase.TransmissionResult{Accepted: false, Error: "sandbox gateway does not accept PRODUCTION submissions"}, nil
	}
	if err := wellFormed(xmlPayload); err != nil {
		return usecase.TransmissionResult{Accepted: false, Error: "malformed payload: " + err.Error()}, nil
	}
	if s.Reject != nil {
		if reason := s.Reject(xmlPayload); reason != "" {
			return usecase.TransmissionResult{Accepted: false, Error: reason}, nil
		}
	}
	ticket := "SANDBOX-" + uuid.NewString()
	s.mu.Lock()
	s.tickets[ticket] = usecase.OutcomeAccepted
	s.mu.Unlock()
	return usecase.TransmissionResult{Accepted: true, TransferTicket: ticket}, nil
}

func (s *Sandbox) Status(_ context.Context, ticket string, _ domain.SubmissionMode) (usecase.OutcomeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.tickets[ticket]
	if !ok {
		return usecase.OutcomeResult{}, fmt.Errorf("transfer ticket %s: %w", ticket, domain.ErrNotFound)
	}
	return usecase.OutcomeResult{Outcome: outcome, Message: "sandbox"}, nil
}

// SetOutcome overrides the verdict the sandbox reports for ticket.
func (s *Sandbox) SetOutcome(ticket string, outcome usecase.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket] = outcome
}

func wellFormed(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return errors.New("empty document")
	}
	dec := xml.NewDecoder(strings.NewReader(payload))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
