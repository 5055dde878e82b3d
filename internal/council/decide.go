package council

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/raphaelgruber/council-go/internal/publish"
)

// Claim acquires the run for one operator based on the operator's freshly
// observed version. Racing claimants are resolved by the store: one winner,
// one claim conflict.
func (o *Orchestrator) Claim(ctx context.Context, runID, owner string) (*models.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return o.store.ClaimRun(ctx, runID, run.Version, owner)
}

// Approve claims the run, optionally opens the synthesis in the editor, and
// publishes the approved artifacts. On publish failure the run is marked
// commit_failed and the published directory, if any, is left for manual
// recovery; it is never retried automatically.
func (o *Orchestrator) Approve(ctx context.Context, runID, owner string, withEdit bool, editNote string) (*publish.CommitResult, error) {
	run, err := o.Claim(ctx, runID, owner)
	if err != nil {
		return nil, err
	}

	synthesis, err := o.store.LatestSnapshot(ctx, runID, models.StageSynthesis)
	if err != nil {
		return nil, err
	}
	if synthesis == nil {
		return nil, fmt.Errorf("approve run %s: %w", runID, ErrSynthesisMissing)
	}

	edited := false
	if withEdit {
		if o.editor == nil {
			return nil, fmt.Errorf("approve run %s: no editor configured", runID)
		}
		edited, err = o.editSynthesis(ctx, runID, synthesis)
		if err != nil {
			return nil, err
		}
	}

	run, err = o.store.StartCommit(ctx, runID, run.Version, owner)
	if err != nil {
		return nil, err
	}

	approval := models.Approval{
		Approver:  owner,
		DecidedAt: time.Now().UTC(),
		Edited:    edited,
		EditNote:  editNote,
	}
	return o.publishRun(ctx, run, approval)
}

// Reject marks a claimed run rejected and spawns its replacement run with
// the packet copied over, so the new run starts from the same inputs without
// live-linking the rejected run's state.
func (o *Orchestrator) Reject(ctx context.Context, runID, owner, reason string) (*models.Run, error) {
	run, err := o.Claim(ctx, runID, owner)
	if err != nil {
		return nil, err
	}

	childID := uuid.NewString()
	child, err := o.store.RejectRun(ctx, runID, run.Version, owner, reason, childID)
	if err != nil {
		return nil, err
	}

	if err := o.copyPacket(ctx, runID, childID, reason); err != nil {
		return nil, fmt.Errorf("seed rejection run %s: %w", childID, err)
	}

	o.log.Info("run rejected", "run", runID, "owner", owner, "new_run", childID)
	return child, nil
}

// RetryCommit re-attempts the publish of a commit_failed run. This is the
// only path that retries a failed commit, and it is always operator-driven.
func (o *Orchestrator) RetryCommit(ctx context.Context, runID, owner string) (*publish.CommitResult, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	run, err = o.store.RetryCommit(ctx, runID, run.Version, owner)
	if err != nil {
		return nil, err
	}

	approval := models.Approval{
		Approver:  owner,
		DecidedAt: time.Now().UTC(),
		EditNote:  "manual commit retry",
	}
	return o.publishRun(ctx, run, approval)
}

// publishRun gathers every staged artifact and hands them to the commit
// writer, then settles the run's terminal status.
func (o *Orchestrator) publishRun(ctx context.Context, run *models.Run, approval models.Approval) (*publish.CommitResult, error) {
	runID := models.MustRecordIDString(run.ID)
	if o.pub == nil {
		return nil, fmt.Errorf("publish run %s: no publisher configured", runID)
	}

	files, err := o.collectFiles(ctx, runID)
	if err != nil {
		return nil, err
	}

	result, err := o.pub.Commit(ctx, run, files, approval)
	if err != nil {
		if _, finishErr := o.store.FinishCommit(ctx, runID, run.Version, models.RunStatusCommitFailed); finishErr != nil {
			o.log.Error("failed to mark run commit_failed", "run", runID, "error", finishErr)
		}
		return nil, fmt.Errorf("publish run %s: %w", runID, err)
	}

	if _, err := o.store.FinishCommit(ctx, runID, run.Version, models.RunStatusCommitted); err != nil {
		return nil, fmt.Errorf("mark run %s committed (publish succeeded at %s): %w", runID, result.Dir, err)
	}

	o.log.Info("run committed", "run", runID, "dir", result.Dir, "commit", result.CommitID)
	return result, nil
}

// collectFiles loads every artifact from the latest snapshot of each output
// stage. The packet is an input and is not published.
func (o *Orchestrator) collectFiles(ctx context.Context, runID string) ([]publish.StagedFile, error) {
	var files []publish.StagedFile
	for _, stage := range outputStages {
		snap, err := o.store.LatestSnapshot(ctx, runID, stage)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, fmt.Errorf("collect run %s: missing %s snapshot", runID, stage)
		}
		for _, ref := range snap.Artifacts {
			data, err := o.ws.Read(runID, ref)
			if err != nil {
				return nil, err
			}
			files = append(files, publish.StagedFile{
				Path:  ref.Path,
				Data:  data,
				Role:  ref.Role,
				Stage: ref.Stage,
			})
		}
	}
	return files, nil
}

// copyPacket copies the rejected run's packet into the replacement run's
// workspace and snapshots it there, making the new run independently
// resumable. The reviewer's feedback is appended to the packet so the next
// council sees why the previous output was turned down.
func (o *Orchestrator) copyPacket(ctx context.Context, parentID, childID, feedback string) error {
	snap, err := o.store.LatestSnapshot(ctx, parentID, models.StagePacket)
	if err != nil {
		return err
	}
	if snap == nil {
		return ErrPacketMissing
	}

	var refs []models.ArtifactRef
	for _, ref := range snap.Artifacts {
		data, err := o.ws.Read(parentID, ref)
		if err != nil {
			return err
		}
		if feedback != "" {
			data = append(data, []byte(fmt.Sprintf("\n## Reviewer Feedback (run %s)\n\n%s\n", parentID, feedback))...)
		}
		newRef, err := o.ws.Write(childID, ref.Path, data, ref.Role, ref.Stage, ref.Model)
		if err != nil {
			return err
		}
		refs = append(refs, newRef)
	}
	_, err = o.store.CreateSnapshot(ctx, childID, models.StagePacket, refs, fmt.Sprintf("packet copied from run %s", parentID))
	return err
}

// editSynthesis opens the synthesis text in the editor and, if it changed,
// persists the edited artifact as a new synthesis snapshot.
func (o *Orchestrator) editSynthesis(ctx context.Context, runID string, synthesis *models.StageSnapshot) (bool, error) {
	ref := synthesis.Artifact(models.RoleSynthesis)
	if ref == nil {
		return false, fmt.Errorf("edit run %s: %w", runID, ErrSynthesisMissing)
	}
	original, err := o.ws.Read(runID, *ref)
	if err != nil {
		return false, err
	}

	text, changed, err := o.editor.Edit(string(original))
	if err != nil {
		return false, fmt.Errorf("edit run %s: %w", runID, err)
	}
	if !changed {
		return false, nil
	}

	newRef, err := o.ws.Write(runID, ref.Path, []byte(text), models.RoleSynthesis, models.StageSynthesis, ref.Model)
	if err != nil {
		return false, err
	}
	newRef.Edited = true
	if _, err := o.store.CreateSnapshot(ctx, runID, models.StageSynthesis, []models.ArtifactRef{newRef}, "edited synthesis"); err != nil {
		return false, err
	}
	return true, nil
}
