package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CommitStatus tracks a publish attempt through its phases.
type CommitStatus string

const (
	CommitStatusStaging   CommitStatus = "staging"
	CommitStatusStaged    CommitStatus = "staged"
	CommitStatusCommitted CommitStatus = "committed"
	CommitStatusFailed    CommitStatus = "commit_failed"
)

// Approval carries the human decision metadata attached to a commit.
type Approval struct {
	Approver   string    `json:"approver"`
	DecidedAt  time.Time `json:"decided_at"`
	Edited     bool      `json:"edited"`
	EditNote   string    `json:"edit_note,omitempty"`
}

// ManifestFile is one published file entry.
type ManifestFile struct {
	Path  string       `json:"path"`
	Hash  string       `json:"hash"`
	Size  int64        `json:"size"`
	Role  ArtifactRole `json:"role"`
	Stage string       `json:"stage"`
}

// Manifest is the ordered list of files in one published commit directory,
// plus the approval metadata that authorized it.
type Manifest struct {
	RunID     string         `json:"run_id"`
	Project   string         `json:"project"`
	TaskType  TaskType       `json:"task_type"`
	Dir       string         `json:"dir"`
	Files     []ManifestFile `json:"files"`
	Approval  Approval       `json:"approval"`
	CreatedAt time.Time      `json:"created_at"`
}

// CommitRecord is one row per completed or attempted publish. Updated
// exactly once on success or failure; a failed record is never retried
// automatically.
type CommitRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	Run            surrealmodels.RecordID `json:"run"`
	TargetCommitID *string                `json:"target_commit_id,omitempty"`
	Manifest       Manifest               `json:"manifest"`
	Status         CommitStatus           `json:"status"`
	Error          *string                `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
