package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted or failed run",
	Long: `Resume a run from its last completed stage. Stages whose artifacts are
intact in the workspace are not re-executed, so resuming a crashed run only
pays for the work that was lost.

Examples:
  council resume 4f1c9b2a
  council resume 4f1c9b2a-03aa-4b9e-9f0f-2d1c5e8a7b61`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	orch, err := getOrchestrator(true, "")
	if err != nil {
		return err
	}

	run, err := orch.Resume(context.Background(), args[0])
	if run != nil {
		printRunOutcome(run)
	}
	saveUsage()
	return err
}
