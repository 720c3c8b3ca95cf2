package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vermietify/internal/domain"
)

var (
	backupID       string
	backupSourceID string
	backupReason   string
	backupActor    string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, verify and prune submission snapshots",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot a submission",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			snap, err := a.backups.SnapshotEntity(ctx, domain.KindSubmission, backupSourceID, backupReason, backupActor)
			if err != nil {
				return err
			}
			return printJSON(cmd, snapshotSummary(snap))
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the snapshots of a submission, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			snaps, err := a.backups.ListVersions(ctx, backupSourceID)
			if err != nil {
				return err
			}
			out := make([]snapshotOutput, 0, len(snaps))
			for _, snap := range snaps {
				out = append(out, snapshotSummary(snap))
			}
			return printJSON(cmd, out)
		})
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute a snapshot's immutable hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			snap, err := a.backups.VerifySnapshot(ctx, backupID)
			if err != nil && !errors.Is(err, domain.ErrIntegrity) {
				return err
			}
			out := snapshotSummary(snap)
			out.Valid = err == nil
			if printErr := printJSON(cmd, out); printErr != nil {
				return printErr
			}
			if err != nil {
				return fmt.Errorf("snapshot %s failed verification", backupID)
			}
			return nil
		})
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots older than the retention window",
	Long: `Delete snapshots captured before now minus BACKUP_RETENTION_DAYS. The newest
snapshot of every submission is always kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now, err := parseNowFlag(nowFlag)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.backups.Prune(ctx, now, a.cfg.BackupRetention())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

type snapshotOutput struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"source_id"`
	Reason        string    `json:"reason"`
	CapturedBy    string    `json:"captured_by"`
	CapturedAt    time.Time `json:"captured_at"`
	ImmutableHash string    `json:"immutable_hash"`
	Valid         bool      `json:"valid,omitempty"`
}

func snapshotSummary(snap domain.BackupSnapshot) snapshotOutput {
	return snapshotOutput{
		ID:            snap.ID,
		SourceID:      snap.SourceID,
		Reason:        snap.Reason,
		CapturedBy:    snap.CapturedBy,
		CapturedAt:    snap.CapturedAt,
		ImmutableHash: snap.ImmutableHash,
	}
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupSourceID, "id", "", "Submission id")
	backupCreateCmd.Flags().StringVar(&backupReason, "reason", "manual", "Reason stored with the snapshot")
	backupCreateCmd.Flags().StringVar(&backupActor, "actor", "cli", "Actor recorded in the audit trail")
	_ = backupCreateCmd.MarkFlagRequired("id")

	backupListCmd.Flags().StringVar(&backupSourceID, "id", "", "Submission id")
	_ = backupListCmd.MarkFlagRequired("id")

	backupVerifyCmd.Flags().StringVar(&backupID, "id", "", "Snapshot id")
	_ = backupVerifyCmd.MarkFlagRequired("id")

	backupPruneCmd.Flags().StringVar(&nowFlag, "now", "", "Reference time (RFC3339, default current time)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupPruneCmd)
}
