// Package db provides SurrealDB query functions for run state operations.
//
// Every state-modifying run operation is a conditional update predicated on
// the caller's expected version (and, where the state machine requires it,
// the current status and claim owner). The update increments version by 1
// and returns the row after mutation; an empty result means the condition
// failed and nothing was mutated. The failure is then diagnosed by
// re-reading the run so callers get a precise sentinel error.
package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateRun creates a new run in status "created" with version 0.
// parentRunID is set when this run was spawned by a rejection.
func (c *Client) CreateRun(
	ctx context.Context,
	id string,
	project string,
	taskType models.TaskType,
	parentRunID *string,
	modelIDs []string,
	chairModel string,
) (*models.Run, error) {
	sql := `
		CREATE type::record("run", $id) SET
			project = $project,
			task_type = $task_type,
			status = "created",
			current_stage = "",
			version = 0,
			parent_run = IF $parent THEN type::record("run", $parent) ELSE NONE END,
			models = $models,
			chair_model = $chair
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Run](ctx, c.db, sql, map[string]any{
		"id":        id,
		"project":   project,
		"task_type": string(taskType),
		"parent":    parentRunID,
		"models":    modelIDs,
		"chair":     chairModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create run: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetRun retrieves a run by ID. Returns ErrRunNotFound if it doesn't exist.
func (c *Client) GetRun(ctx context.Context, id string) (*models.Run, error) {
	results, err := surrealdb.Query[[]models.Run](ctx, c.db, `
		SELECT * FROM type::record("run", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns runs, most recent first, with optional project and
// status filters.
func (c *Client) ListRuns(
	ctx context.Context,
	project string,
	status models.RunStatus,
	limit int,
) ([]models.Run, error) {
	conditions := "TRUE"
	vars := map[string]any{"limit": limit}
	if project != "" {
		conditions += " AND project = $project"
		vars["project"] = project
	}
	if status != "" {
		conditions += " AND status = $status"
		vars["status"] = string(status)
	}

	sql := fmt.Sprintf(`
		SELECT * FROM run WHERE %s ORDER BY created_at DESC LIMIT $limit
	`, conditions)

	results, err := surrealdb.Query[[]models.Run](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Run{}, nil
	}
	return (*results)[0].Result, nil
}

// casUpdate runs one conditional run update. sql must be an UPDATE with
// RETURN AFTER whose WHERE clause includes the version predicate. An empty
// result aborts with no side effects and is diagnosed into a sentinel error.
func (c *Client) casUpdate(
	ctx context.Context,
	op string,
	sql string,
	vars map[string]any,
	diagnose func(run *models.Run) error,
) (*models.Run, error) {
	results, err := surrealdb.Query[[]models.Run](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, wrapQueryError(err))
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}

	// Condition failed: re-read to say why.
	id, _ := vars["id"].(string)
	run, err := c.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, fmt.Errorf("%s: %w", op, diagnose(run))
}

// expectStatus produces the standard diagnosis for an update conditioned on
// one source status: wrong status means invalid transition, right status
// with a failed version predicate means the caller's copy is stale.
func expectStatus(want models.RunStatus) func(*models.Run) error {
	return func(run *models.Run) error {
		if run.Status != want {
			return fmt.Errorf("%w: run is %s, want %s", ErrInvalidTransition, run.Status, want)
		}
		return ErrStaleState
	}
}

// BeginRun transitions created -> running and sets the first stage.
func (c *Client) BeginRun(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "running",
			current_stage = $stage,
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "created"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "begin run", sql, map[string]any{
		"id": id, "version": expectedVersion, "stage": stage,
	}, expectStatus(models.RunStatusCreated))
}

// AdvanceStage records completion of one stage: running -> running with a
// new current_stage and version+1.
func (c *Client) AdvanceStage(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			current_stage = $stage,
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "running"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "advance stage", sql, map[string]any{
		"id": id, "version": expectedVersion, "stage": stage,
	}, expectStatus(models.RunStatusRunning))
}

// PauseForApproval transitions running -> waiting_human at the synthesis
// boundary. This is the one suspension point in the state machine.
func (c *Client) PauseForApproval(ctx context.Context, id string, expectedVersion int) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "waiting_human",
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "running"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "pause for approval", sql, map[string]any{
		"id": id, "version": expectedVersion,
	}, expectStatus(models.RunStatusRunning))
}

// FailRun transitions running -> failed after a stage failure. Snapshots
// already persisted are retained so a restart can skip completed stages.
func (c *Client) FailRun(ctx context.Context, id string, expectedVersion int) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "failed",
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "running"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "fail run", sql, map[string]any{
		"id": id, "version": expectedVersion,
	}, expectStatus(models.RunStatusRunning))
}

// RestartRun transitions failed -> running so a manual restart can re-enter
// the stage loop. Completed stages are skipped via their retained snapshots.
func (c *Client) RestartRun(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "running",
			current_stage = $stage,
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "failed"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "restart run", sql, map[string]any{
		"id": id, "version": expectedVersion, "stage": stage,
	}, expectStatus(models.RunStatusFailed))
}

// RetryCommit transitions commit_failed -> committing for an explicit
// operator retry, taking the claim for the retrying operator.
func (c *Client) RetryCommit(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "committing",
			claim_owner = $owner,
			claim_time = time::now(),
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "commit_failed"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "retry commit", sql, map[string]any{
		"id": id, "version": expectedVersion, "owner": owner,
	}, expectStatus(models.RunStatusCommitFailed))
}

// ClaimRun acquires exclusive ownership of a paused run for one operator.
// Succeeds only while the run is waiting_human and unclaimed, or already
// claimed by the same owner (idempotent retry). Two racing claims yield
// exactly one winner; the loser gets ErrClaimConflict.
func (c *Client) ClaimRun(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "claimed",
			claim_owner = $owner,
			claim_time = time::now(),
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND (
			(status = "waiting_human" AND claim_owner IS NONE)
			OR (status = "claimed" AND claim_owner = $owner)
		)
		RETURN AFTER
	`
	diagnose := func(run *models.Run) error {
		switch run.Status {
		case models.RunStatusWaitingHuman:
			if run.Claimed() {
				return fmt.Errorf("%w: claimed by %s", ErrClaimConflict, *run.ClaimOwner)
			}
			return ErrStaleState
		case models.RunStatusClaimed:
			if run.ClaimOwner != nil && *run.ClaimOwner != owner {
				return fmt.Errorf("%w: claimed by %s", ErrClaimConflict, *run.ClaimOwner)
			}
			return ErrStaleState
		default:
			return fmt.Errorf("%w: run is %s, want %s", ErrInvalidTransition, run.Status, models.RunStatusWaitingHuman)
		}
	}
	return c.casUpdate(ctx, "claim run", sql, map[string]any{
		"id": id, "version": expectedVersion, "owner": owner,
	}, diagnose)
}

// StartCommit transitions claimed -> committing, holding the claim.
func (c *Client) StartCommit(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error) {
	sql := `
		UPDATE type::record("run", $id) SET
			status = "committing",
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "claimed" AND claim_owner = $owner
		RETURN AFTER
	`
	diagnose := func(run *models.Run) error {
		if run.Status != models.RunStatusClaimed {
			return fmt.Errorf("%w: run is %s, want %s", ErrInvalidTransition, run.Status, models.RunStatusClaimed)
		}
		if run.ClaimOwner == nil || *run.ClaimOwner != owner {
			return fmt.Errorf("%w: claimed by %s", ErrClaimConflict, claimOwnerOrNone(run))
		}
		return ErrStaleState
	}
	return c.casUpdate(ctx, "start commit", sql, map[string]any{
		"id": id, "version": expectedVersion, "owner": owner,
	}, diagnose)
}

// FinishCommit transitions committing -> committed or commit_failed.
func (c *Client) FinishCommit(ctx context.Context, id string, expectedVersion int, status models.RunStatus) (*models.Run, error) {
	if status != models.RunStatusCommitted && status != models.RunStatusCommitFailed {
		return nil, fmt.Errorf("finish commit: %w: target status %s", ErrInvalidTransition, status)
	}
	sql := `
		UPDATE type::record("run", $id) SET
			status = $to,
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "committing"
		RETURN AFTER
	`
	return c.casUpdate(ctx, "finish commit", sql, map[string]any{
		"id": id, "version": expectedVersion, "to": string(status),
	}, expectStatus(models.RunStatusCommitting))
}

// RejectRun marks a claimed run rejected and spawns exactly one new run
// with parent_run pointing at it, in a single transaction. The rejected
// run is never mutated again except for this rejection record.
func (c *Client) RejectRun(
	ctx context.Context,
	id string,
	expectedVersion int,
	owner string,
	reason string,
	newRunID string,
) (*models.Run, error) {
	sql := `
		BEGIN TRANSACTION;
		LET $rejected = (UPDATE type::record("run", $id) SET
			status = "rejected",
			reject_reason = $reason,
			version += 1,
			updated_at = time::now()
		WHERE version = $version AND status = "claimed" AND claim_owner = $owner
		RETURN AFTER);
		IF array::len($rejected) == 0 {
			THROW "reject precondition failed"
		};
		CREATE type::record("run", $new_id) SET
			project = $rejected[0].project,
			task_type = $rejected[0].task_type,
			status = "created",
			current_stage = "",
			version = 0,
			parent_run = type::record("run", $id),
			models = $rejected[0].models,
			chair_model = $rejected[0].chair_model;
		COMMIT TRANSACTION;
	`
	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":      id,
		"version": expectedVersion,
		"owner":   owner,
		"reason":  reason,
		"new_id":  newRunID,
	})
	if err != nil {
		err = wrapQueryError(err)
		// The THROW rolls everything back; re-read to diagnose.
		run, getErr := c.GetRun(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("reject run: %w", getErr)
		}
		switch {
		case run.Status != models.RunStatusClaimed:
			return nil, fmt.Errorf("reject run: %w: run is %s, want %s", ErrInvalidTransition, run.Status, models.RunStatusClaimed)
		case run.ClaimOwner == nil || *run.ClaimOwner != owner:
			return nil, fmt.Errorf("reject run: %w: claimed by %s", ErrClaimConflict, claimOwnerOrNone(run))
		case run.Version != expectedVersion:
			return nil, fmt.Errorf("reject run: %w", ErrStaleState)
		default:
			return nil, fmt.Errorf("reject run: %w", err)
		}
	}

	return c.GetRun(ctx, newRunID)
}

func claimOwnerOrNone(run *models.Run) string {
	if run.ClaimOwner == nil {
		return "(none)"
	}
	return *run.ClaimOwner
}
