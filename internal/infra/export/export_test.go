package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTrail() usecase.Trail {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	score := 92
	sub := domain.Submission{
		ID:              "sub-1",
		BuildingID:      "b-1",
		FormType:        "anlage_v",
		TaxYear:         2025,
		Status:          domain.StatusValidated,
		ConfidenceScore: &score,
		FormData: domain.FormData{
			{Name: "z_last", Value: int64(1)},
			{Name: "a_first", Value: "x"},
		},
	}
	return usecase.Trail{
		EntityID:    "sub-1",
		Submission:  &sub,
		GeneratedAt: base.Add(time.Hour),
		Events: []domain.AuditEvent{
			{ID: "e1", EntityID: "sub-1", Seq: 1, Action: domain.ActionCreated, Actor: "alice", Timestamp: base},
			{ID: "e2", EntityID: "sub-1", Seq: 2, Action: domain.ActionValidated, Actor: "system", Timestamp: base.Add(time.Minute),
				Detail: map[string]any{"note": "a;b \"quoted\""}},
		},
	}
}

func TestCSVRender(t *testing.T) {
	body, err := CSV{}.Render(sampleTrail())
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"Timestamp", "Action", "PerformedBy", "Details"}, rows[0])
	require.Equal(t, "2026-03-02T10:00:00.000000Z", rows[1][0])
	require.Equal(t, "{}", rows[1][3])

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(rows[2][3]), &details))
	require.Equal(t, "a;b \"quoted\"", details["note"])
}

func TestJSONRenderIncludesSubmission(t *testing.T) {
	body, err := JSON{}.Render(sampleTrail())
	require.NoError(t, err)

	var doc struct {
		EntityID   string                     `json:"entity_id"`
		Submission map[string]json.RawMessage `json:"submission"`
		Events     []map[string]any           `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	require.Equal(t, "sub-1", doc.EntityID)
	require.Len(t, doc.Events, 2)
	require.Equal(t, "alice", doc.Events[0]["performed_by"])

	form := string(doc.Submission["form_data"])
	require.Less(t, strings.Index(form, "z_last"), strings.Index(form, "a_first"))
}

func TestJSONRenderWithoutSubmission(t *testing.T) {
	trail := sampleTrail()
	trail.Submission = nil
	body, err := JSON{}.Render(trail)
	require.NoError(t, err)
	require.NotContains(t, string(body), `"submission"`)
}

func TestXLSXRender(t *testing.T) {
	body, err := XLSX{}.Render(sampleTrail())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(auditSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "PerformedBy", rows[0][2])
	require.Equal(t, string(domain.ActionValidated), rows[2][1])
}

func TestRenderersCoverEveryFormat(t *testing.T) {
	renderers := Renderers()
	for _, format := range []usecase.ExportFormat{usecase.ExportJSON, usecase.ExportCSV, usecase.ExportXLSX} {
		r, ok := renderers[format]
		require.True(t, ok, format)
		require.NotEmpty(t, r.ContentType())
	}
}
