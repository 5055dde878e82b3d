package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git drives the system git binary against a working tree.
type Git struct{}

func runGit(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", root}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsRepo reports whether root is inside a git working tree.
func (Git) IsRepo(ctx context.Context, root string) (bool, error) {
	out, err := runGit(ctx, root, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		if strings.Contains(err.Error(), "not a git repository") {
			return false, nil
		}
		return false, err
	}
	return out == "true", nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (Git) IsClean(ctx context.Context, root string) (bool, error) {
	out, err := runGit(ctx, root, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// Commit stages everything under root and commits, returning the commit hash.
func (Git) Commit(ctx context.Context, root, message string) (string, error) {
	if _, err := runGit(ctx, root, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := runGit(ctx, root, "commit", "-m", message); err != nil {
		return "", err
	}
	return runGit(ctx, root, "rev-parse", "HEAD")
}
