package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/raphaelgruber/council-go/internal/workspace"
	"github.com/spf13/cobra"
)

var showSection string

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its artifacts",
	Long: `Show a run's state and stage snapshots. With --section, print the
artifact content of that stage instead.

Examples:
  council show 4f1c9b2a
  council show 4f1c9b2a --section synthesis
  council show 4f1c9b2a --section drafts`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showSection, "section", "s", "", "print artifact content for one stage (packet, drafts, critiques, synthesis)")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	runID := args[0]

	run, err := dbClient.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if showSection != "" {
		return printSection(ctx, runID, showSection)
	}

	fmt.Printf("Run %s\n", models.MustRecordIDString(run.ID))
	fmt.Printf("  Project:  %s\n", run.Project)
	fmt.Printf("  Task:     %s\n", run.TaskType)
	fmt.Printf("  Status:   %s (stage %s, v%d)\n", styledStatus(run.Status), run.CurrentStage, run.Version)
	fmt.Printf("  Council:  %v, chair %s\n", run.Models, run.ChairModel)
	fmt.Printf("  Created:  %s\n", run.CreatedAt.Format(time.RFC3339))
	if run.Claimed() {
		fmt.Printf("  Claimed:  by %s\n", *run.ClaimOwner)
	}
	if run.RejectReason != nil {
		fmt.Printf("  Rejected: %s\n", *run.RejectReason)
	}
	if run.ParentRun != nil {
		fmt.Printf("  Replaces: run %s\n", models.MustRecordIDString(*run.ParentRun))
	}

	fmt.Printf("\nStages:\n")
	for _, stage := range []string{models.StagePacket, models.StageDrafts, models.StageCritiques, models.StageSynthesis} {
		snap, err := dbClient.LatestSnapshot(ctx, runID, stage)
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Printf("  %-10s -\n", stage)
			continue
		}
		fmt.Printf("  %-10s %s\n", stage, snap.Summary)
		if verbose {
			for _, ref := range snap.Artifacts {
				edited := ""
				if ref.Edited {
					edited = " [edited]"
				}
				fmt.Printf("             %s (%d bytes)%s\n", ref.Path, ref.Size, edited)
			}
		}
	}

	return nil
}

// printSection dumps every artifact of one stage to stdout.
func printSection(ctx context.Context, runID, stage string) error {
	snap, err := dbClient.LatestSnapshot(ctx, runID, stage)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("run %s has no %s snapshot", runID, stage)
	}

	ws, err := workspace.NewStore(cfg.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	for _, ref := range snap.Artifacts {
		data, err := ws.Read(runID, ref)
		if err != nil {
			return err
		}
		if len(snap.Artifacts) > 1 {
			fmt.Printf("--- %s ---\n", ref.Path)
		}
		fmt.Println(string(data))
	}
	return nil
}
