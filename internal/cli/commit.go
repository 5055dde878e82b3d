package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	commitOwner string
	commitRepo  string
)

var commitCmd = &cobra.Command{
	Use:   "commit <run-id>",
	Short: "Retry the commit of a commit_failed run",
	Long: `Retry publishing an approved run whose commit failed. Commits are never
retried automatically; this is the manual recovery path. If the failure left
a published version directory behind, inspect it first with
'council commit reconcile'.

Examples:
  council commit 4f1c9b2a --as alice
  council commit 4f1c9b2a --as alice --repo ~/work/shop-backend`,
	Args: cobra.ExactArgs(1),
	RunE: runCommit,
}

var commitReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Detect and resolve interrupted publishes in the target repository",
	Long: `Scan the target repository's versions directory for publishes that were
interrupted: abandoned staging directories, published directories without a
commit record, and records stuck mid-publish. Stuck records are resolved to
commit_failed; everything found is reported for manual follow-up.`,
	Args: cobra.NoArgs,
	RunE: runCommitReconcile,
}

func init() {
	commitCmd.Flags().StringVar(&commitOwner, "as", "", "your reviewer name (required)")
	commitCmd.Flags().StringVar(&commitRepo, "repo", "", "target repository (default from config)")
	commitCmd.MarkFlagRequired("as")

	commitReconcileCmd.Flags().StringVar(&commitRepo, "repo", "", "target repository (default from config)")

	commitCmd.AddCommand(commitReconcileCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	runID := args[0]

	orch, err := getOrchestrator(false, commitRepo)
	if err != nil {
		return err
	}

	result, err := orch.RetryCommit(context.Background(), runID, commitOwner)
	if err != nil {
		return decisionError(runID, err)
	}

	fmt.Printf("Run %s published.\n", runID)
	fmt.Printf("  Directory: %s\n", result.Dir)
	fmt.Printf("  Commit:    %s\n", result.CommitID)
	return nil
}

func runCommitReconcile(cmd *cobra.Command, args []string) error {
	writer := newWriter(commitRepo)

	issues, err := writer.Reconcile(context.Background())
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if len(issues) == 0 {
		fmt.Println("No interrupted publishes found.")
		return nil
	}

	fmt.Printf("Found %d issue(s):\n\n", len(issues))
	for _, issue := range issues {
		fmt.Printf("- %s: %s\n", issue.Dir, issue.Detail)
	}
	return nil
}
