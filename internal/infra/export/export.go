// Package export renders audit trails for download.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"vermietify/internal/domain"
	"vermietify/internal/usecase"

	"github.com/xuri/excelize/v2"
)

// Renderers returns every supported format keyed for usecase.NewAuditRecorder.
func Renderers() map[usecase.ExportFormat]usecase.TrailRenderer {
	return map[usecase.ExportFormat]usecase.TrailRenderer{
		usecase.ExportJSON: JSON{},
		usecase.ExportCSV:  CSV{},
		usecase.ExportXLSX: XLSX{},
	}
}

var csvHeader = []string{"Timestamp", "Action", "PerformedBy", "Details"}

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type eventDocument struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	Action        string         `json:"action"`
	PerformedBy   string         `json:"performed_by"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	PayloadHash   string         `json:"payload_hash"`
	PrevEventHash string         `json:"prev_event_hash"`
	EventHash     string         `json:"event_hash"`
}

type trailDocument struct {
	EntityID    string          `json:"entity_id"`
	GeneratedAt string          `json:"generated_at"`
	Submission  map[string]any  `json:"submission,omitempty"`
	Events      []eventDocument `json:"events"`
}

// JSON keeps every stored field, plus the parent submission when there is one.
type JSON struct{}

func (JSON) ContentType() string { return "application/json" }

func (JSON) Render(trail usecase.Trail) ([]byte, error) {
	doc := trailDocument{
		EntityID:    trail.EntityID,
		GeneratedAt: formatTime(trail.GeneratedAt),
		Events:      make([]eventDocument, 0, len(trail.Events)),
	}
	if trail.Submission != nil {
		doc.Submission = trail.Submission.Document()
		doc.Submission["form_data"] = trail.Submission.FormData
	}
	for _, ev := range trail.Events {
		doc.Events = append(doc.Events, eventDocument{
			ID:            ev.ID,
			Seq:           ev.Seq,
			Action:        string(ev.Action),
			PerformedBy:   ev.Actor,
			Timestamp:     formatTime(ev.Timestamp),
			Details:       ev.Detail,
			Metadata:      ev.Metadata,
			PayloadHash:   ev.PayloadHash,
			PrevEventHash: ev.PrevEventHash,
			EventHash:     ev.EventHash,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// CSV is the flattened, semicolon separated view; Details holds JSON.
type CSV struct{}

func (CSV) ContentType() string { return "text/csv; charset=utf-8" }

func (CSV) Render(trail usecase.Trail) ([]byte, error) {
	rows, err := flatten(trail.Events)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	w.Comma = ';'
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XLSX writes the same columns as CSV into a single worksheet.
type XLSX struct{}

func (XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

const auditSheet = "Audit"

func (XLSX) Render(trail usecase.Trail) ([]byte, error) {
	rows, err := flatten(trail.Events)
	if err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", auditSheet); err != nil {
		return nil, err
	}
	write := func(col, row int, v string) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(auditSheet, cell, v)
	}
	for i, h := range csvHeader {
		if err := write(i+1, 1, h); err != nil {
			return nil, err
		}
	}
	for r, row := range rows {
		for c, v := range row {
			if err := write(c+1, r+2, v); err != nil {
				return nil, err
			}
		}
	}
	_ = f.SetColWidth(auditSheet, "A", "A", 30)
	_ = f.SetColWidth(auditSheet, "B", "C", 18)
	_ = f.SetColWidth(auditSheet, "D", "D", 80)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func flatten(events []domain.AuditEvent) ([][]string, error) {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		details := "{}"
		if len(ev.Detail) > 0 {
			raw, err := json.Marshal(ev.Detail)
			if err != nil {
				return nil, fmt.Errorf("event %s details: %w", ev.ID, err)
			}
			details = string(raw)
		}
		rows = append(rows, []string{formatTime(ev.Timestamp), string(ev.Action), ev.Actor, details})
	}
	return rows, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
