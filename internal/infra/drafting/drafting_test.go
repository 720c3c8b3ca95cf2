package drafting

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"
)

func sampleSubmission() domain.Submission {
	return domain.Submission{
		ID:         "sub-1",
		BuildingID: "b-1",
		FormType:   "anlage_v",
		TaxYear:    2025,
		Mode:       domain.ModeTest,
		FormData: domain.FormData{
			{Name: "period_start", Value: "01.01.2025"},
			{Name: "period_end", Value: "31.12.2025"},
			{Name: "rental_income", Value: int64(12000)},
		},
	}
}

func TestSchemaValidatorAcceptsValidForm(t *testing.T) {
	v, err := NewSchemaValidator("")
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	issues, err := v.Validate(context.Background(), sampleSubmission())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestSchemaValidatorReportsFieldErrors(t *testing.T) {
	v, err := NewSchemaValidator("")
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	sub := sampleSubmission()
	sub.FormData = domain.FormData{
		{Name: "period_start", Value: "2025-01-01"},
		{Name: "period_end", Value: "31.12.2025"},
		{Name: "rental_income", Value: int64(-5)},
	}
	issues, err := v.Validate(context.Background(), sub)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	fields := map[string]bool{}
	for _, issue := range issues {
		if issue.Severity != domain.SeverityError {
			t.Fatalf("expected error severity, got %+v", issue)
		}
		fields[issue.Field] = true
	}
	if !fields["period_start"] || !fields["rental_income"] {
		t.Fatalf("expected period_start and rental_income issues, got %+v", issues)
	}
}

func TestSchemaValidatorMissingRuleSetWarns(t *testing.T) {
	v, err := NewSchemaValidatorFromSources(nil)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	issues, err := v.Validate(context.Background(), sampleSubmission())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) != 1 || issues[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected single warning, got %+v", issues)
	}
	if domain.HasBlockingIssues(issues) {
		t.Fatalf("warning must not block")
	}
}

func TestSchemaValidatorDirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	schema := `{"type":"object","required":["owner_share"]}`
	if err := os.WriteFile(filepath.Join(dir, "Anlage_KAP.json"), []byte(schema), 0o600); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	v, err := NewSchemaValidator(dir)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if got := strings.Join(v.FormTypes(), ","); got != "anlage_kap,anlage_v" {
		t.Fatalf("unexpected form types %q", got)
	}
	sub := sampleSubmission()
	sub.FormType = "Anlage_KAP"
	issues, err := v.Validate(context.Background(), sub)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(issues) != 1 || issues[0].Field != "form_data" {
		t.Fatalf("expected root-level issue, got %+v", issues)
	}
}

func TestSchemaValidatorRejectsBrokenSchema(t *testing.T) {
	_, err := NewSchemaValidatorFromSources(map[string][]byte{"bad": []byte("{")})
	if err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestXMLRendererKeepsFieldOrder(t *testing.T) {
	sub := sampleSubmission()
	sub.FormData = append(sub.FormData, domain.FormField{Name: "share", Value: 0.5})
	out, err := XMLRenderer{}.Render(sub)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out, xml.Header) {
		t.Fatalf("missing xml header")
	}
	start := strings.Index(out, `name="period_start"`)
	income := strings.Index(out, `name="rental_income"`)
	if start < 0 || income < 0 || start > income {
		t.Fatalf("fields out of order:\n%s", out)
	}
	if !strings.Contains(out, `>12000<`) || !strings.Contains(out, `>0.5<`) {
		t.Fatalf("numbers not rendered plainly:\n%s", out)
	}
	var parsed struct {
		XMLName xml.Name
		ID      string `xml:"id,attr"`
	}
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output is not well formed: %v", err)
	}
	if parsed.ID != "sub-1" {
		t.Fatalf("unexpected id %q", parsed.ID)
	}
}

func TestXMLRendererEscapesValues(t *testing.T) {
	sub := sampleSubmission()
	sub.FormData = domain.FormData{{Name: "building_name", Value: "Haus <A> & B"}}
	out, err := XMLRenderer{}.Render(sub)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<A>") {
		t.Fatalf("value not escaped:\n%s", out)
	}
}

func TestClientDraft(t *testing.T) {
	var got draftRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/drafts" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"form_data":{"z":1,"a":"x"},"confidence_score":91,"validation_errors":[{"field":"a","message":"check","severity":"warning"}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0)
	res, err := client.Draft(context.Background(), usecase.DraftInput{SubmissionID: "sub-1", FormType: "anlage_v", TaxYear: 2025})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if got.SubmissionID != "sub-1" || got.TaxYear != 2025 {
		t.Fatalf("unexpected request %+v", got)
	}
	if res.ConfidenceScore != 91 || len(res.ValidationErrors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.FormData) != 2 || res.FormData[0].Name != "z" {
		t.Fatalf("form order lost: %+v", res.FormData)
	}
}

func TestClientDraftRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"form_data":{},"confidence_score":50}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, 0).Draft(context.Background(), usecase.DraftInput{})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if res.ConfidenceScore != 50 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls)
	}
}

func TestClientDraftClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Draft(context.Background(), usecase.DraftInput{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestClientDraftRequiresScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"form_data":{}}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Draft(context.Background(), usecase.DraftInput{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
