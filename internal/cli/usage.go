package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/raphaelgruber/council-go/internal/metrics"
	"github.com/spf13/cobra"
)

const usageFile = "usage.json"

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show generation usage statistics",
	Long: `Show per-stage and per-model generation statistics from the most recent
pipeline invocation: call counts, latency, and token usage for cost
monitoring.

Examples:
  council usage
  council usage --verbose`,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	path := filepath.Join(cfg.WorkspaceRoot, usageFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No usage recorded yet. Run a pipeline first.")
			return nil
		}
		return fmt.Errorf("read usage: %w", err)
	}

	var snap metrics.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse usage: %w", err)
	}

	fmt.Printf("Generation Usage (last pipeline invocation)\n")
	fmt.Printf("═══════════════════════════════════════════\n")
	fmt.Printf("Pipeline time: %.1f seconds\n", snap.UptimeSeconds)

	printStage("Drafts", snap.Drafts)
	printStage("Critiques", snap.Critiques)
	printStage("Synthesis", snap.Synthesis)

	if len(snap.Models) > 0 {
		fmt.Printf("\nBy Model:\n")
		names := make([]string, 0, len(snap.Models))
		for name := range snap.Models {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			u := snap.Models[name]
			fmt.Printf("  %-28s %d calls, %d in / %d out tokens\n",
				name, u.Count, u.TotalInputTokens, u.TotalOutputTokens)
		}
	}

	return nil
}

// printStage displays statistics for one pipeline stage.
func printStage(name string, u *metrics.UsageSnapshot) {
	if u == nil {
		return
	}
	fmt.Printf("\n%s:\n", name)
	fmt.Printf("  Calls: %d, Total: %dms\n", u.Count, u.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n", u.AvgTimeMs, u.MinTimeMs, u.MaxTimeMs)
	fmt.Printf("  Tokens In:  %d total, avg %.0f, min %d, max %d\n",
		u.TotalInputTokens, u.AvgInputTokens, u.MinInputTokens, u.MaxInputTokens)
	fmt.Printf("  Tokens Out: %d total, avg %.0f, min %d, max %d\n",
		u.TotalOutputTokens, u.AvgOutputTokens, u.MinOutputTokens, u.MaxOutputTokens)
}

// saveUsage persists the collector snapshot after a pipeline invocation so
// 'council usage' can report it from a later process.
func saveUsage() {
	snap := collector.Snapshot()
	if snap.Drafts == nil && snap.Critiques == nil && snap.Synthesis == nil {
		return
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(cfg.WorkspaceRoot, usageFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Warn("failed to save usage snapshot", "path", path, "error", err)
	}
}
