package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	statusProject string
	statusFilter  string
	statusLimit   int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List runs",
	Long: `List runs with optional filtering, newest first.

Examples:
  council status
  council status --project shop-backend
  council status --status waiting_human`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusProject, "project", "p", "", "filter by project")
	statusCmd.Flags().StringVarP(&statusFilter, "status", "s", "", "filter by run status")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 50, "max results")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	runs, err := dbClient.ListRuns(ctx, statusProject, models.RunStatus(statusFilter), statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("Runs (%d):\n\n", len(runs))
	for _, run := range runs {
		id := models.MustRecordIDString(run.ID)
		fmt.Printf("- %s  %-14s %-12s %s  stage=%s v%d\n",
			id, styledStatus(run.Status), run.TaskType, run.Project, run.CurrentStage, run.Version)
		if verbose {
			if run.Claimed() {
				fmt.Printf("  claimed by %s\n", *run.ClaimOwner)
			}
			if run.RejectReason != nil {
				fmt.Printf("  rejected: %s\n", *run.RejectReason)
			}
			if run.ParentRun != nil {
				fmt.Printf("  replaces run %s\n", models.MustRecordIDString(*run.ParentRun))
			}
		}
	}

	return nil
}
