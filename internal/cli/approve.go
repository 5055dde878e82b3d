package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/council-go/internal/db"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	approveOwner  string
	approveEdit   bool
	approveNote   string
	approveReject string
)

var approveCmd = &cobra.Command{
	Use:   "approve <run-id>",
	Short: "Claim a run and approve, edit or reject it",
	Long: `Claim a waiting run and decide on it. Approval publishes the run's
artifacts into the target repository as one atomic version directory and
git-commits it. With --edit, the synthesis opens in your editor first and
the edited text is what gets published. With --reject, the run is closed
and a replacement run is created carrying your feedback.

Claims are exclusive: if someone else claimed the run first, the command
fails and nothing happens.

Examples:
  council approve 4f1c9b2a --as alice
  council approve 4f1c9b2a --as alice --edit --note "tightened scope"
  council approve 4f1c9b2a --as alice --reject "plan ignores the migration"`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveOwner, "as", "", "your reviewer name (required)")
	approveCmd.Flags().BoolVarP(&approveEdit, "edit", "e", false, "edit the synthesis before publishing")
	approveCmd.Flags().StringVar(&approveNote, "note", "", "note recorded with the approval")
	approveCmd.Flags().StringVar(&approveReject, "reject", "", "reject with this reason instead of approving")
	approveCmd.MarkFlagRequired("as")
}

func runApprove(cmd *cobra.Command, args []string) error {
	runID := args[0]
	ctx := context.Background()

	orch, err := getOrchestrator(false, "")
	if err != nil {
		return err
	}

	if approveReject != "" {
		child, err := orch.Reject(ctx, runID, approveOwner, approveReject)
		if err != nil {
			return decisionError(runID, err)
		}
		childID := models.MustRecordIDString(child.ID)
		fmt.Printf("Run %s rejected.\n", runID)
		fmt.Printf("Replacement run %s created with your feedback.\n", childID)
		fmt.Printf("\nStart it with: council resume %s\n", childID)
		return nil
	}

	result, err := orch.Approve(ctx, runID, approveOwner, approveEdit, approveNote)
	if err != nil {
		return decisionError(runID, err)
	}

	fmt.Printf("Run %s approved and published.\n", runID)
	fmt.Printf("  Directory: %s\n", result.Dir)
	fmt.Printf("  Commit:    %s\n", result.CommitID)
	return nil
}

// decisionError attaches a recovery hint to the errors a reviewer can act on.
func decisionError(runID string, err error) error {
	switch {
	case errors.Is(err, db.ErrClaimConflict):
		return fmt.Errorf("%w\n\nrun %s is claimed by someone else, check 'council show %s'", err, runID, runID)
	case errors.Is(err, db.ErrStaleState):
		return fmt.Errorf("%w\n\nthe run changed underneath you, re-run the command", err)
	default:
		return err
	}
}
