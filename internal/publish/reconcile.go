package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/council-go/internal/models"
)

// Issue is one inconsistency between the published tree and the store.
type Issue struct {
	Dir      string
	RecordID string
	Detail   string
}

// Reconcile walks the published directories and flags the crash windows the
// rename-based commit leaves open: a directory with no commit record, or one
// whose record never left staging/staged. Affected records are resolved to
// commit_failed; directories are never deleted.
func (w *Writer) Reconcile(ctx context.Context) ([]Issue, error) {
	entries, err := os.ReadDir(filepath.Join(w.targetRoot, versionsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read versions dir: %w", err)
	}

	var issues []Issue
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".staging-") {
			issues = append(issues, Issue{
				Dir:    filepath.ToSlash(filepath.Join(versionsDir, name)),
				Detail: "abandoned staging directory, safe to remove manually",
			})
			continue
		}

		dir := filepath.ToSlash(filepath.Join(versionsDir, name))
		record, err := w.rec.CommitRecordByDir(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("look up record for %s: %w", dir, err)
		}
		if record == nil {
			issues = append(issues, Issue{
				Dir:    dir,
				Detail: "published directory has no commit record, requires manual confirmation",
			})
			continue
		}

		switch record.Status {
		case models.CommitStatusCommitted, models.CommitStatusFailed:
			// settled
		default:
			recordID := models.MustRecordIDString(record.ID)
			detail := fmt.Sprintf("publish interrupted in status %q, resolved to commit_failed", record.Status)
			w.failRecord(ctx, recordID, fmt.Errorf("reconcile: %s", detail))
			issues = append(issues, Issue{Dir: dir, RecordID: recordID, Detail: detail})
		}
	}
	return issues, nil
}
