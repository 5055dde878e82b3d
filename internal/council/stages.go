package council

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raphaelgruber/council-go/internal/llm"
	"github.com/raphaelgruber/council-go/internal/models"
)

// pipelineStages is the ordered stage graph every run executes before the
// approval boundary.
var pipelineStages = []string{
	models.StagePacket,
	models.StageDrafts,
	models.StageCritiques,
	models.StageSynthesis,
}

// outputStages are the stages whose artifacts get published on approval.
var outputStages = pipelineStages[1:]

// Execute drives a run through its remaining stages and pauses it at the
// approval boundary. A stage whose latest snapshot verifies against the
// workspace is skipped, so crash-resume and fresh execution share this path.
func (o *Orchestrator) Execute(ctx context.Context, run *models.Run) (*models.Run, error) {
	id := models.MustRecordIDString(run.ID)

	if run.Status == models.RunStatusCreated {
		var err error
		run, err = o.store.BeginRun(ctx, id, run.Version, models.StagePacket)
		if err != nil {
			return nil, err
		}
	}
	if run.Status != models.RunStatusRunning {
		return nil, fmt.Errorf("execute run %s: run is %s, want %s", id, run.Status, models.RunStatusRunning)
	}

	snapshots := make(map[string]*models.StageSnapshot, len(pipelineStages))
	for _, stage := range pipelineStages {
		snap, err := o.store.LatestSnapshot(ctx, id, stage)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			ok, err := o.ws.Verify(id, snap.Artifacts)
			if err != nil {
				return nil, fmt.Errorf("verify %s snapshot of run %s: %w", stage, id, err)
			}
			if ok {
				o.log.Debug("stage already complete, skipping", "run", id, "stage", stage)
				snapshots[stage] = snap
				continue
			}
		}

		snap, err = o.runStage(ctx, run, stage, snapshots)
		if err != nil {
			if _, failErr := o.store.FailRun(ctx, id, run.Version); failErr != nil {
				o.log.Error("failed to mark run failed", "run", id, "error", failErr)
			}
			return nil, fmt.Errorf("run %s stage %s: %w", id, stage, err)
		}
		snapshots[stage] = snap

		run, err = o.store.AdvanceStage(ctx, id, run.Version, stage)
		if err != nil {
			return nil, err
		}
		o.log.Info("stage complete", "run", id, "stage", stage, "artifacts", len(snap.Artifacts))
	}

	run, err := o.store.PauseForApproval(ctx, id, run.Version)
	if err != nil {
		return nil, err
	}
	o.log.Info("run waiting for human decision", "run", id)
	return run, nil
}

func (o *Orchestrator) runStage(ctx context.Context, run *models.Run, stage string, snapshots map[string]*models.StageSnapshot) (*models.StageSnapshot, error) {
	switch stage {
	case models.StagePacket:
		// The packet is written at creation time (or copied from the
		// parent on rejection). Without it the run's inputs are gone.
		return nil, ErrPacketMissing
	case models.StageDrafts:
		return o.runDrafts(ctx, run, snapshots)
	case models.StageCritiques:
		return o.runCritiques(ctx, run, snapshots)
	case models.StageSynthesis:
		return o.runSynthesis(ctx, run, snapshots)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// runDrafts fans out one generation per council model and joins at a
// barrier. The stage completes if at least minDrafts models produced a
// draft; individual failures below that threshold are logged and tolerated.
func (o *Orchestrator) runDrafts(ctx context.Context, run *models.Run, snapshots map[string]*models.StageSnapshot) (*models.StageSnapshot, error) {
	id := models.MustRecordIDString(run.ID)
	packet, err := o.stageText(id, snapshots, models.StagePacket, models.RolePacket)
	if err != nil {
		return nil, err
	}

	type draftResult struct {
		model string
		text  string
		err   error
	}
	results := make([]draftResult, len(run.Models))

	var wg sync.WaitGroup
	for i, model := range run.Models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			r, err := o.generate(ctx, models.StageDrafts, model, draftSystemPrompt(run.TaskType), packet)
			if err != nil {
				results[i] = draftResult{model: model, err: err}
				return
			}
			results[i] = draftResult{model: model, text: r.Text}
		}(i, model)
	}
	wg.Wait()

	var refs []models.ArtifactRef
	var failures []error
	for _, r := range results {
		if r.err != nil {
			o.log.Warn("draft failed", "run", id, "model", r.model, "error", r.err)
			failures = append(failures, fmt.Errorf("%s: %w", r.model, r.err))
			continue
		}
		path := fmt.Sprintf("drafts/%s.md", models.Slugify(r.model))
		ref, err := o.ws.Write(id, path, []byte(r.text), models.RoleDraft, models.StageDrafts, r.model)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if len(refs) < minDrafts {
		return nil, fmt.Errorf("%w: %d of %d drafts succeeded, need %d: %w",
			ErrStageFailed, len(refs), len(run.Models), minDrafts, errors.Join(failures...))
	}

	summary := fmt.Sprintf("%d of %d drafts", len(refs), len(run.Models))
	return o.store.CreateSnapshot(ctx, id, models.StageDrafts, refs, summary)
}

// runCritiques has every model critique the full draft set. Unlike drafts
// there is no quorum: any failure fails the stage, so the synthesis never
// works from a partial critique matrix.
func (o *Orchestrator) runCritiques(ctx context.Context, run *models.Run, snapshots map[string]*models.StageSnapshot) (*models.StageSnapshot, error) {
	id := models.MustRecordIDString(run.ID)
	packet, err := o.stageText(id, snapshots, models.StagePacket, models.RolePacket)
	if err != nil {
		return nil, err
	}
	drafts, err := o.roleTexts(id, snapshots, models.StageDrafts, models.RoleDraft)
	if err != nil {
		return nil, err
	}

	input := critiqueInput(packet, drafts)

	type critiqueResult struct {
		model string
		text  string
		err   error
	}
	results := make([]critiqueResult, len(run.Models))

	var wg sync.WaitGroup
	for i, model := range run.Models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			r, err := o.generate(ctx, models.StageCritiques, model, critiqueSystemPrompt, input)
			if err != nil {
				results[i] = critiqueResult{model: model, err: err}
				return
			}
			results[i] = critiqueResult{model: model, text: r.Text}
		}(i, model)
	}
	wg.Wait()

	var refs []models.ArtifactRef
	var failures []error
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", r.model, r.err))
			continue
		}
		path := fmt.Sprintf("critiques/%s.md", models.Slugify(r.model))
		ref, err := o.ws.Write(id, path, []byte(r.text), models.RoleCritique, models.StageCritiques, r.model)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("%w: %d critique(s) failed: %w", ErrStageFailed, len(failures), errors.Join(failures...))
	}

	summary := fmt.Sprintf("%d critiques", len(refs))
	return o.store.CreateSnapshot(ctx, id, models.StageCritiques, refs, summary)
}

// runSynthesis has the chair model merge drafts and critiques into the one
// document the human will judge.
func (o *Orchestrator) runSynthesis(ctx context.Context, run *models.Run, snapshots map[string]*models.StageSnapshot) (*models.StageSnapshot, error) {
	id := models.MustRecordIDString(run.ID)
	packet, err := o.stageText(id, snapshots, models.StagePacket, models.RolePacket)
	if err != nil {
		return nil, err
	}
	drafts, err := o.roleTexts(id, snapshots, models.StageDrafts, models.RoleDraft)
	if err != nil {
		return nil, err
	}
	critiques, err := o.roleTexts(id, snapshots, models.StageCritiques, models.RoleCritique)
	if err != nil {
		return nil, err
	}

	r, err := o.generate(ctx, models.StageSynthesis, run.ChairModel, chairSystemPrompt(run.TaskType), synthesisInput(packet, drafts, critiques))
	if err != nil {
		return nil, fmt.Errorf("%w: chair %s: %w", ErrStageFailed, run.ChairModel, err)
	}

	ref, err := o.ws.Write(id, "synthesis/synthesis.md", []byte(r.Text), models.RoleSynthesis, models.StageSynthesis, run.ChairModel)
	if err != nil {
		return nil, err
	}
	return o.store.CreateSnapshot(ctx, id, models.StageSynthesis, []models.ArtifactRef{ref}, fmt.Sprintf("synthesis by %s", run.ChairModel))
}

// generate delegates to the generation collaborator and records usage.
func (o *Orchestrator) generate(ctx context.Context, stage, model, systemPrompt, userPrompt string) (*llm.Result, error) {
	r, err := o.gen.Generate(ctx, model, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.RecordGeneration(stage, model, r.Latency, int64(r.InputTokens), int64(r.OutputTokens))
	}
	return r, nil
}

// stageText reads the single artifact of a role from a stage snapshot.
func (o *Orchestrator) stageText(runID string, snapshots map[string]*models.StageSnapshot, stage string, role models.ArtifactRole) (string, error) {
	snap := snapshots[stage]
	if snap == nil {
		return "", fmt.Errorf("no %s snapshot for run %s", stage, runID)
	}
	ref := snap.Artifact(role)
	if ref == nil {
		return "", fmt.Errorf("no %s artifact in %s snapshot of run %s", role, stage, runID)
	}
	data, err := o.ws.Read(runID, *ref)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// modelText pairs an artifact's producing model with its content.
type modelText struct {
	Model string
	Text  string
}

// roleTexts reads all artifacts of a role from a stage snapshot, ordered by
// model name for deterministic prompt assembly.
func (o *Orchestrator) roleTexts(runID string, snapshots map[string]*models.StageSnapshot, stage string, role models.ArtifactRole) ([]modelText, error) {
	snap := snapshots[stage]
	if snap == nil {
		return nil, fmt.Errorf("no %s snapshot for run %s", stage, runID)
	}

	var out []modelText
	for _, ref := range snap.ArtifactsByRole(role) {
		data, err := o.ws.Read(runID, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, modelText{Model: ref.Model, Text: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s artifacts in %s snapshot of run %s", role, stage, runID)
	}
	return out, nil
}

func critiqueInput(packet string, drafts []modelText) string {
	var b strings.Builder
	b.WriteString(packet)
	b.WriteString("\n# Drafts Under Review\n\n")
	for _, d := range drafts {
		fmt.Fprintf(&b, "## Draft by %s\n\n%s\n\n", d.Model, strings.TrimSpace(d.Text))
	}
	return b.String()
}

func synthesisInput(packet string, drafts, critiques []modelText) string {
	var b strings.Builder
	b.WriteString(critiqueInput(packet, drafts))
	b.WriteString("\n# Critiques\n\n")
	for _, c := range critiques {
		fmt.Fprintf(&b, "## Critique by %s\n\n%s\n\n", c.Model, strings.TrimSpace(c.Text))
	}
	return b.String()
}
