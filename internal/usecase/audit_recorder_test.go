package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"vermietify/internal/domain"
	cryptoinfra "vermietify/internal/infra/crypto"
	"vermietify/internal/usecase"

	"github.com/stretchr/testify/require"
)

type lineRenderer struct{}

func (lineRenderer) Render(trail usecase.Trail) ([]byte, error) {
	lines := make([]string, 0, len(trail.Events))
	for _, e := range trail.Events {
		lines = append(lines, string(e.Action))
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func (lineRenderer) ContentType() string { return "text/plain" }

func TestAuditRecorder_ChainAndExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.audit.Renderers = map[usecase.ExportFormat]usecase.TrailRenderer{usecase.ExportJSON: lineRenderer{}}
	sub := h.validatedSubmission(t, "b-1", 90)

	exported, err := h.audit.ExportTrail(ctx, sub.ID, usecase.ExportJSON)
	require.NoError(t, err)
	require.Equal(t, 3, exported.EventCount)
	require.Equal(t, "created\nai_processed\nvalidated", string(exported.Body))
	require.Equal(t, "text/plain", exported.ContentType)

	_, err = h.audit.ExportTrail(ctx, sub.ID, usecase.ExportXLSX)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = h.audit.ExportTrail(ctx, "unknown", usecase.ExportJSON)
	require.ErrorIs(t, err, domain.ErrNotFound)

	events, err := h.store.Audit().ListByEntity(ctx, sub.ID)
	require.NoError(t, err)
	for i, e := range events {
		require.Equal(t, int64(i+1), e.Seq)
		if i == 0 {
			require.Equal(t, domain.ZeroAuditHash(), e.PrevEventHash)
			continue
		}
		require.Equal(t, events[i-1].EventHash, e.PrevEventHash)
	}
	canon := cryptoinfra.NewService()
	require.NoError(t, usecase.VerifyAuditChain(canon, sub.ID, events))

	tampered := append([]domain.AuditEvent(nil), events...)
	tampered[1].Actor = "mallory"
	require.ErrorIs(t, usecase.VerifyAuditChain(canon, sub.ID, tampered), domain.ErrIntegrity)

	dropped := []domain.AuditEvent{events[0], events[2]}
	require.ErrorIs(t, usecase.VerifyAuditChain(canon, sub.ID, dropped), domain.ErrIntegrity)
}

func TestAuditRecorder_TrailOrdersByTimestamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.create(t, "b-1", 2025)
	h.now = h.now.Add(time.Hour)
	_, err := h.audit.Record(ctx, sub.ID, domain.ActionBackupCreated, "", map[string]any{"backup_id": "x"})
	require.NoError(t, err)

	events, err := h.audit.Trail(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.ActionCreated, events[0].Action)
	require.Equal(t, domain.ActorSystem, events[1].Actor)
	require.True(t, events[1].Timestamp.After(events[0].Timestamp))

	_, err = h.audit.Record(ctx, "", domain.ActionBackupCreated, "", nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestParseExportFormat(t *testing.T) {
	f, err := usecase.ParseExportFormat("CSV")
	require.NoError(t, err)
	require.Equal(t, usecase.ExportCSV, f)
	_, err = usecase.ParseExportFormat("pdf")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
