package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateSnapshot appends an immutable stage snapshot for a run. Snapshots
// are never updated or deleted; resume logic reads only the latest per stage.
func (c *Client) CreateSnapshot(
	ctx context.Context,
	runID string,
	stage string,
	artifacts []models.ArtifactRef,
	summary string,
) (*models.StageSnapshot, error) {
	if artifacts == nil {
		artifacts = []models.ArtifactRef{}
	}

	sql := `
		CREATE snapshot SET
			run = type::record("run", $run_id),
			stage = $stage,
			schema_version = $schema_version,
			artifacts = $artifacts,
			summary = $summary
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.StageSnapshot](ctx, c.db, sql, map[string]any{
		"run_id":         runID,
		"stage":          stage,
		"schema_version": models.SnapshotSchemaVersion,
		"artifacts":      artifacts,
		"summary":        summary,
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create snapshot: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// LatestSnapshot returns the most recent snapshot for one stage of a run,
// or nil if the stage has never completed.
func (c *Client) LatestSnapshot(ctx context.Context, runID string, stage string) (*models.StageSnapshot, error) {
	sql := `
		SELECT * FROM snapshot
		WHERE run = type::record("run", $run_id) AND stage = $stage
		ORDER BY created_at DESC
		LIMIT 1
	`

	results, err := surrealdb.Query[[]models.StageSnapshot](ctx, c.db, sql, map[string]any{
		"run_id": runID,
		"stage":  stage,
	})
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListSnapshots returns all snapshots for a run, oldest first.
func (c *Client) ListSnapshots(ctx context.Context, runID string) ([]models.StageSnapshot, error) {
	sql := `
		SELECT * FROM snapshot
		WHERE run = type::record("run", $run_id)
		ORDER BY created_at ASC
	`

	results, err := surrealdb.Query[[]models.StageSnapshot](ctx, c.db, sql, map[string]any{
		"run_id": runID,
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.StageSnapshot{}, nil
	}
	return (*results)[0].Result, nil
}
