package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"vermietify/internal/usecase"
)

var (
	migrateID     string
	migrateYear   int
	migrateTarget []string
	migrateActor  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy submissions into a new tax year",
	Long: `Create a draft for the target year from each source submission. Period
fields move by the year difference and aggregates are cleared. With several
ids the run goes through the batch service, which snapshots each source first.

Examples:
  vermietify migrate --id 7f1c... --year 2026
  vermietify migrate --ids a,b,c --year 2026`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateID, "id", "", "Source submission id")
	migrateCmd.Flags().StringSliceVar(&migrateTarget, "ids", nil, "Source submission ids for a batch run")
	migrateCmd.Flags().IntVar(&migrateYear, "year", 0, "Target tax year")
	migrateCmd.Flags().StringVar(&migrateActor, "actor", "cli", "Actor recorded in the audit trail")
	_ = migrateCmd.MarkFlagRequired("year")
}

type migrateOutput struct {
	SourceID  string   `json:"source_id"`
	TargetID  string   `json:"target_id"`
	TaxYear   int      `json:"tax_year"`
	Rewritten []string `json:"rewritten"`
	Stripped  []string `json:"stripped"`
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if migrateID == "" && len(migrateTarget) == 0 {
		return errors.New("--id or --ids is required")
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		if len(migrateTarget) > 0 {
			targets := migrateTarget
			if migrateID != "" {
				targets = append(targets, migrateID)
			}
			result, err := a.batch.Run(ctx, batchMigrateRequest(targets, migrateYear, migrateActor))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}
		result, err := a.migrator.Migrate(ctx, migrateID, migrateYear, migrateActor)
		if err != nil {
			return err
		}
		return printJSON(cmd, migrateOutput{
			SourceID:  result.Source.ID,
			TargetID:  result.Target.ID,
			TaxYear:   result.Target.TaxYear,
			Rewritten: result.Rewritten,
			Stripped:  result.Stripped,
		})
	})
}

func batchMigrateRequest(targets []string, year int, actor string) usecase.BatchRequest {
	return usecase.BatchRequest{
		Operation: usecase.BatchMigrate,
		Targets:   targets,
		Params:    map[string]string{"target_year": strconv.Itoa(year)},
		Actor:     actor,
	}
}
