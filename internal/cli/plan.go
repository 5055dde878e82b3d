package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/council-go/internal/council"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	runPacket string
	runModels []string
	runChair  string
)

var planCmd = &cobra.Command{
	Use:   "plan <project>",
	Short: "Start a plan run for a project",
	Long: `Start a council run producing the project plan. The packet file is the
brief the drafters work from. The run pauses at waiting_human once the chair
has synthesized the final plan.

Examples:
  council plan shop-backend --packet brief.md
  council plan shop-backend --packet brief.md --models gpt-4o,claude-sonnet-4-0 --chair gpt-4o`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&runPacket, "packet", "p", "", "path to the brief file (required)")
	planCmd.Flags().StringSliceVarP(&runModels, "models", "m", nil, "drafter models (default from config)")
	planCmd.Flags().StringVar(&runChair, "chair", "", "chair model (default from config)")
	planCmd.MarkFlagRequired("packet")
}

func runPlan(cmd *cobra.Command, args []string) error {
	return startRun(args[0], models.TaskPlan, nil)
}

// startRun starts a run for any task type, drives it to the approval
// boundary and prints where to go next.
func startRun(project string, taskType models.TaskType, inputPaths map[string]string) error {
	brief, err := os.ReadFile(runPacket)
	if err != nil {
		return fmt.Errorf("read packet file: %w", err)
	}

	inputs := make(map[string]council.Input, len(inputPaths))
	for kind, path := range inputPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input %s: %w", kind, err)
		}
		inputs[kind] = council.Input{Source: path, Content: string(content)}
	}

	modelIDs := cfg.Models
	if len(runModels) > 0 {
		modelIDs = runModels
	}
	chair := cfg.ChairModel
	if runChair != "" {
		chair = runChair
	}

	orch, err := getOrchestrator(true, "")
	if err != nil {
		return err
	}

	run, err := orch.Start(context.Background(), project, taskType, modelIDs, chair, string(brief), inputs)
	if run != nil {
		printRunOutcome(run)
	}
	saveUsage()
	return err
}

func printRunOutcome(run *models.Run) {
	id := models.MustRecordIDString(run.ID)
	fmt.Printf("Run %s (%s %s) is %s\n", id, run.Project, run.TaskType, styledStatus(run.Status))
	switch run.Status {
	case models.RunStatusWaitingHuman:
		fmt.Printf("\nReview with:  council show %s\n", id)
		fmt.Printf("Decide with:  council approve %s --as <you> [--edit|--reject <reason>]\n", id)
	case models.RunStatusFailed:
		fmt.Printf("\nRetry with:   council resume %s\n", id)
	}
}

// parseInputFlags turns repeated "kind=path" flags into a map.
func parseInputFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		kind, path, ok := strings.Cut(f, "=")
		if !ok || kind == "" || path == "" {
			return nil, fmt.Errorf("invalid --input %q, want kind=path", f)
		}
		out[kind] = path
	}
	return out, nil
}
