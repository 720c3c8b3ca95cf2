package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"vermietify/internal/config"
	"vermietify/internal/domain"
	"vermietify/internal/usecase"
)

func noDBConfig(t *testing.T) config.Config {
	t.Helper()
	for _, key := range []string{"POSTGRES_DSN", "REDIS_ADDR", "GATEWAY_URL", "DRAFTING_URL", "SCHEMA_DIR", "VERMIETIFY_CONFIG"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNewApp_NoDBWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := noDBConfig(t)
	cfg.Deadlines = map[string]string{"default": "07-31", "Anlage_V": "05-31"}

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.Equal(t, "no-db", a.dbMode)
	require.Nil(t, a.engine.Drafter)
	require.Equal(t, usecase.MonthDay{Month: 7, Day: 31}, a.engine.Queues.DefaultDeadline)
	require.Equal(t, usecase.MonthDay{Month: 5, Day: 31}, a.engine.Queues.Deadlines["anlage_v"])
	require.Len(t, a.scheduler.Jobs(), 3)

	rec := httptest.NewRecorder()
	a.server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"no-db"`)
}

func TestNewApp_RejectsBadDeadline(t *testing.T) {
	cfg := noDBConfig(t)
	cfg.Deadlines = map[string]string{"anlage_v": "31-05"}

	_, err := newApp(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNewApp_LifecycleAgainstSandbox(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, noDBConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	form := domain.FormData{}.
		Set("period_start", "01.01.2025").
		Set("period_end", "31.12.2025").
		Set("rental_income", 12000)
	sub, err := a.engine.Create(ctx, usecase.CreateInput{
		BuildingID: "b-1",
		FormType:   "anlage_v",
		TaxYear:    2025,
		Mode:       domain.ModeTest,
		Actor:      "tester",
	})
	require.NoError(t, err)
	sub, err = a.engine.ApplyDraft(ctx, sub.ID, usecase.DraftResult{FormData: form, ConfidenceScore: 95}, "tester")
	require.NoError(t, err)
	sub, err = a.engine.Validate(ctx, sub.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, domain.StatusValidated, sub.Status)

	sub, err = a.engine.Submit(ctx, sub.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, sub.Status)

	count, err := a.audit.VerifyTrail(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	trail, err := a.audit.ExportTrail(ctx, sub.ID, usecase.ExportCSV)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(trail.Body), "Timestamp;Action;PerformedBy;Details"))
}

func TestSweepCommandPrintsReport(t *testing.T) {
	noDBConfig(t)
	configPath = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sweep", "--now", "2026-05-01T00:00:00Z"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())

	var report usecase.SweepReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Equal(t, 0, report.Scanned)
	require.Equal(t, "2026-05-01T00:00:00Z", report.Now.Format("2006-01-02T15:04:05Z07:00"))
}

func TestParseNowFlag(t *testing.T) {
	_, err := parseNowFlag("yesterday")
	require.Error(t, err)

	now, err := parseNowFlag("2026-01-02T03:04:05+02:00")
	require.NoError(t, err)
	require.Equal(t, 1, now.Hour())
}
