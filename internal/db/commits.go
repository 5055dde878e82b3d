package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateCommitRecord opens a publish attempt in status "staging".
func (c *Client) CreateCommitRecord(
	ctx context.Context,
	runID string,
	manifest models.Manifest,
) (*models.CommitRecord, error) {
	sql := `
		CREATE commit_record SET
			run = type::record("run", $run_id),
			manifest = $manifest,
			status = "staging"
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.CommitRecord](ctx, c.db, sql, map[string]any{
		"run_id":   runID,
		"manifest": manifest,
	})
	if err != nil {
		return nil, fmt.Errorf("create commit record: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create commit record: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// UpdateCommitRecord moves a publish attempt to its final state. Called
// exactly once per record on success or failure; failed records are never
// retried automatically.
func (c *Client) UpdateCommitRecord(
	ctx context.Context,
	recordID string,
	status models.CommitStatus,
	targetCommitID *string,
	errMsg *string,
) (*models.CommitRecord, error) {
	sql := `
		UPDATE type::record("commit_record", $id) SET
			status = $status,
			target_commit_id = $commit_id,
			error = $error,
			updated_at = time::now()
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.CommitRecord](ctx, c.db, sql, map[string]any{
		"id":        recordID,
		"status":    string(status),
		"commit_id": targetCommitID,
		"error":     errMsg,
	})
	if err != nil {
		return nil, fmt.Errorf("update commit record: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update commit record: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// LatestCommitRecord returns the most recent commit record for a run, or
// nil if no publish has been attempted.
func (c *Client) LatestCommitRecord(ctx context.Context, runID string) (*models.CommitRecord, error) {
	sql := `
		SELECT * FROM commit_record
		WHERE run = type::record("run", $run_id)
		ORDER BY created_at DESC
		LIMIT 1
	`

	results, err := surrealdb.Query[[]models.CommitRecord](ctx, c.db, sql, map[string]any{
		"run_id": runID,
	})
	if err != nil {
		return nil, fmt.Errorf("latest commit record: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// CommitRecordByDir finds the commit record whose manifest published the
// given directory. Used by reconciliation to detect a crash between the
// publish rename and the record update.
func (c *Client) CommitRecordByDir(ctx context.Context, dir string) (*models.CommitRecord, error) {
	sql := `
		SELECT * FROM commit_record WHERE manifest.dir = $dir LIMIT 1
	`

	results, err := surrealdb.Query[[]models.CommitRecord](ctx, c.db, sql, map[string]any{
		"dir": dir,
	})
	if err != nil {
		return nil, fmt.Errorf("commit record by dir: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}
