package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/council-go/internal/deps"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/spf13/cobra"
)

var deriveInputs []string

var deriveCmd = &cobra.Command{
	Use:   "derive <task-type> <project>",
	Short: "Start a run derived from earlier artifacts",
	Long: `Start a council run for a derived task type. Derived tasks declare their
inputs, and only the inputs the production order allows are accepted:

  spec          needs plan
  invariants    needs spec
  tracker       needs spec, invariants
  prompts       needs spec, invariants, tracker
  cursor_rules  needs spec, invariants

Examples:
  council derive spec shop-backend --packet brief.md --input plan=out/plan.md
  council derive tracker shop-backend --packet brief.md \
      --input spec=out/spec.md --input invariants=out/invariants.md`,
	Args: cobra.ExactArgs(2),
	RunE: runDerive,
}

func init() {
	deriveCmd.Flags().StringVarP(&runPacket, "packet", "p", "", "path to the brief file (required)")
	deriveCmd.Flags().StringSliceVarP(&runModels, "models", "m", nil, "drafter models (default from config)")
	deriveCmd.Flags().StringVar(&runChair, "chair", "", "chair model (default from config)")
	deriveCmd.Flags().StringArrayVarP(&deriveInputs, "input", "i", nil, "declared input as kind=path (repeatable)")
	deriveCmd.MarkFlagRequired("packet")
}

func runDerive(cmd *cobra.Command, args []string) error {
	taskType, err := models.ParseTaskType(args[0])
	if err != nil {
		return err
	}
	if taskType == models.TaskPlan {
		return errors.New("plan is not a derived task, use 'council plan'")
	}

	inputPaths, err := parseInputFlags(deriveInputs)
	if err != nil {
		return err
	}

	err = startRun(args[1], taskType, inputPaths)

	// Make dependency violations actionable instead of a one-line error.
	var violations *deps.Violations
	if errors.As(err, &violations) {
		fmt.Printf("Run refused: %d illegal input(s) for %s\n\n", len(violations.Items), taskType)
		for _, v := range violations.Items {
			fmt.Printf("  %s\n", v)
		}
		allowed, _ := deps.AllowedInputs(taskType)
		if len(allowed) > 0 {
			fmt.Printf("\nAllowed inputs for %s: %s\n", taskType, strings.Join(allowed, ", "))
		}
		return fmt.Errorf("dependency validation failed")
	}
	return err
}
