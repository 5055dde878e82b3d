// Package models defines data structures for council runs, snapshots, and commits.
package models

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusCreated      RunStatus = "created"
	RunStatusRunning      RunStatus = "running"
	RunStatusWaitingHuman RunStatus = "waiting_human"
	RunStatusClaimed      RunStatus = "claimed"
	RunStatusCommitting   RunStatus = "committing"
	RunStatusCommitted    RunStatus = "committed"
	RunStatusCommitFailed RunStatus = "commit_failed"
	RunStatusRejected     RunStatus = "rejected"
	RunStatusFailed       RunStatus = "failed"
)

// Terminal reports whether no further orchestrator transitions apply.
// commit_failed is terminal for the orchestrator; recovery is a manual
// commit retry, never an automatic one.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCommitted, RunStatusCommitFailed, RunStatusRejected, RunStatusFailed:
		return true
	}
	return false
}

// TaskType identifies which artifact pipeline a run produces.
type TaskType string

const (
	TaskPlan        TaskType = "plan"
	TaskSpec        TaskType = "spec"
	TaskInvariants  TaskType = "invariants"
	TaskTracker     TaskType = "tracker"
	TaskPrompts     TaskType = "prompts"
	TaskCursorRules TaskType = "cursor_rules"
)

// ParseTaskType validates a task type string.
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(s); t {
	case TaskPlan, TaskSpec, TaskInvariants, TaskTracker, TaskPrompts, TaskCursorRules:
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Stage names, in pipeline order.
const (
	StagePacket    = "packet"
	StageDrafts    = "drafts"
	StageCritiques = "critiques"
	StageSynthesis = "synthesis"
	StageCommit    = "commit"
)

// Run is one execution of the council pipeline for one project namespace.
// Version increases by exactly 1 on every successful mutating operation;
// all mutations are conditional updates predicated on the expected version.
type Run struct {
	ID           surrealmodels.RecordID  `json:"id"`
	Project      string                  `json:"project"`
	TaskType     TaskType                `json:"task_type"`
	Status       RunStatus               `json:"status"`
	CurrentStage string                  `json:"current_stage"`
	Version      int                     `json:"version"`
	ClaimOwner   *string                 `json:"claim_owner,omitempty"`
	ClaimTime    *time.Time              `json:"claim_time,omitempty"`
	ParentRun    *surrealmodels.RecordID `json:"parent_run,omitempty"`
	RejectReason *string                 `json:"reject_reason,omitempty"`
	Models       []string                `json:"models"`
	ChairModel   string                  `json:"chair_model"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Claimed reports whether the run currently has a claim owner.
func (r *Run) Claimed() bool {
	return r.ClaimOwner != nil && *r.ClaimOwner != ""
}
