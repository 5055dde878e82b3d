package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SnapshotSchemaVersion tags the snapshot wire shape. Future fields are
// additive; old snapshots with a lower schema_version remain loadable.
const SnapshotSchemaVersion = 1

// ArtifactRole categorizes what a produced artifact is.
type ArtifactRole string

const (
	RolePacket    ArtifactRole = "packet"
	RoleDraft     ArtifactRole = "draft"
	RoleCritique  ArtifactRole = "critique"
	RoleSynthesis ArtifactRole = "synthesis"
	RoleManifest  ArtifactRole = "manifest"
)

// ArtifactRef points at one content-addressed artifact file. Immutable
// once written. Path is relative to the run's workspace directory before
// commit, and target-relative inside a published commit directory.
type ArtifactRef struct {
	Path     string       `json:"path"`
	Hash     string       `json:"hash"`
	Role     ArtifactRole `json:"role"`
	Stage    string       `json:"stage"`
	Model    string       `json:"model,omitempty"`
	Size     int64        `json:"size"`
	Edited   bool         `json:"edited,omitempty"`
	InputTok int          `json:"input_tokens,omitempty"`
	OutputTok int         `json:"output_tokens,omitempty"`
}

// StageSnapshot is the minimal persisted record of one completed stage.
// Append-only; the orchestrator reads only the latest snapshot per stage
// when resuming.
type StageSnapshot struct {
	ID            surrealmodels.RecordID `json:"id"`
	Run           surrealmodels.RecordID `json:"run"`
	Stage         string                 `json:"stage"`
	SchemaVersion int                    `json:"schema_version"`
	Artifacts     []ArtifactRef          `json:"artifacts"`
	Summary       string                 `json:"summary"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Artifact returns the first artifact with the given role, or nil.
func (s *StageSnapshot) Artifact(role ArtifactRole) *ArtifactRef {
	for i := range s.Artifacts {
		if s.Artifacts[i].Role == role {
			return &s.Artifacts[i]
		}
	}
	return nil
}

// ArtifactsByRole returns all artifacts with the given role, in snapshot order.
func (s *StageSnapshot) ArtifactsByRole(role ArtifactRole) []ArtifactRef {
	var out []ArtifactRef
	for _, a := range s.Artifacts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}
