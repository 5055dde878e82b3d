// Package council orchestrates one pipeline run: parallel model drafts,
// cross-critiques, chair synthesis, a human approval boundary, and the final
// publish into an external working tree. The orchestrator persists a snapshot
// after every stage so a run can pause indefinitely and resume in a separate
// process invocation.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/council-go/internal/deps"
	"github.com/raphaelgruber/council-go/internal/llm"
	"github.com/raphaelgruber/council-go/internal/metrics"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/raphaelgruber/council-go/internal/publish"
	"github.com/raphaelgruber/council-go/internal/workspace"
)

// minDrafts is the quorum of successful drafts required for the draft stage
// to complete.
const minDrafts = 2

var (
	// ErrStageFailed marks a generation or join failure; the run is moved
	// to failed and completed snapshots are retained for restart.
	ErrStageFailed = errors.New("stage failed")
	// ErrPacketMissing means a run has no packet snapshot and its inputs
	// cannot be reconstructed.
	ErrPacketMissing = errors.New("packet snapshot missing")
	// ErrSynthesisMissing means a decision was attempted on a run whose
	// synthesis snapshot is absent. Programmer error, fatal.
	ErrSynthesisMissing = errors.New("synthesis snapshot missing")
)

// Store is the durable run state surface. Implemented by db.Client.
type Store interface {
	CreateRun(ctx context.Context, id, project string, taskType models.TaskType, parentRunID *string, modelIDs []string, chairModel string) (*models.Run, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	BeginRun(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error)
	AdvanceStage(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error)
	PauseForApproval(ctx context.Context, id string, expectedVersion int) (*models.Run, error)
	FailRun(ctx context.Context, id string, expectedVersion int) (*models.Run, error)
	RestartRun(ctx context.Context, id string, expectedVersion int, stage string) (*models.Run, error)
	ClaimRun(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error)
	StartCommit(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error)
	FinishCommit(ctx context.Context, id string, expectedVersion int, status models.RunStatus) (*models.Run, error)
	RetryCommit(ctx context.Context, id string, expectedVersion int, owner string) (*models.Run, error)
	RejectRun(ctx context.Context, id string, expectedVersion int, owner, reason, newRunID string) (*models.Run, error)
	CreateSnapshot(ctx context.Context, runID, stage string, artifacts []models.ArtifactRef, summary string) (*models.StageSnapshot, error)
	LatestSnapshot(ctx context.Context, runID, stage string) (*models.StageSnapshot, error)
}

// Generator is the external text generation capability. Implemented by
// llm.Client; retry policy lives there, any error here is final.
type Generator interface {
	Generate(ctx context.Context, model, systemPrompt, userPrompt string) (*llm.Result, error)
}

// Publisher commits approved artifacts into the target tree. Implemented by
// publish.Writer.
type Publisher interface {
	Commit(ctx context.Context, run *models.Run, files []publish.StagedFile, approval models.Approval) (*publish.CommitResult, error)
}

// Editor is the external human-editing capability. A cancelled edit returns
// the original text with changed=false.
type Editor interface {
	Edit(text string) (string, bool, error)
}

// Input is one declared upstream artifact for a derived task.
type Input struct {
	Source  string
	Content string
}

// Orchestrator is the integration point of the pipeline.
type Orchestrator struct {
	store   Store
	gen     Generator
	ws      *workspace.Store
	pub     Publisher
	editor  Editor
	metrics *metrics.Collector
	log     *slog.Logger
}

// New creates an orchestrator. pub and editor may be nil for flows that
// never reach the commit or edit paths.
func New(store Store, gen Generator, ws *workspace.Store, pub Publisher, editor Editor, collector *metrics.Collector, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:   store,
		gen:     gen,
		ws:      ws,
		pub:     pub,
		editor:  editor,
		metrics: collector,
		log:     log,
	}
}

// Start validates declared inputs, creates a run, writes its input packet,
// and executes stages until the approval boundary.
func (o *Orchestrator) Start(ctx context.Context, project string, taskType models.TaskType, modelIDs []string, chairModel, brief string, inputs map[string]Input) (*models.Run, error) {
	if deps.Derivable(taskType) {
		declared := make(map[string]string, len(inputs))
		for kind, input := range inputs {
			declared[kind] = input.Source
		}
		if err := deps.ValidateInputs(taskType, declared); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	run, err := o.store.CreateRun(ctx, id, models.Slugify(project), taskType, nil, modelIDs, chairModel)
	if err != nil {
		return nil, err
	}

	packet := buildPacket(run, brief, inputs)
	ref, err := o.ws.Write(id, "packet.md", []byte(packet), models.RolePacket, models.StagePacket, "")
	if err != nil {
		return nil, fmt.Errorf("write packet for run %s: %w", id, err)
	}
	if _, err := o.store.CreateSnapshot(ctx, id, models.StagePacket, []models.ArtifactRef{ref}, packetSummary(brief, inputs)); err != nil {
		return nil, fmt.Errorf("snapshot packet for run %s: %w", id, err)
	}

	o.log.Info("run created", "run", id, "project", run.Project, "task", taskType, "models", modelIDs)
	return o.Execute(ctx, run)
}

// Resume re-enters the stage loop for a run started in an earlier process.
// Stages whose snapshots verify against the workspace are skipped.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*models.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case models.RunStatusCreated, models.RunStatusRunning:
		return o.Execute(ctx, run)
	case models.RunStatusFailed:
		run, err = o.store.RestartRun(ctx, runID, run.Version, run.CurrentStage)
		if err != nil {
			return nil, err
		}
		return o.Execute(ctx, run)
	case models.RunStatusWaitingHuman, models.RunStatusClaimed:
		// Already at the approval boundary; a decision, not a resume,
		// moves it forward.
		return run, nil
	default:
		return nil, fmt.Errorf("run %s is %s; nothing to resume", runID, run.Status)
	}
}

// buildPacket renders the input packet the drafters work from.
func buildPacket(run *models.Run, brief string, inputs map[string]Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Input Packet\n\n")
	fmt.Fprintf(&b, "Project: %s\nTask: %s\n\n", run.Project, run.TaskType)
	if brief != "" {
		fmt.Fprintf(&b, "## Brief\n\n%s\n\n", strings.TrimSpace(brief))
	}

	kinds := make([]string, 0, len(inputs))
	for kind := range inputs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		input := inputs[kind]
		fmt.Fprintf(&b, "## Input: %s\n\nSource: %s\n\n%s\n\n", kind, input.Source, strings.TrimSpace(input.Content))
	}
	return b.String()
}

func packetSummary(brief string, inputs map[string]Input) string {
	if len(inputs) == 0 {
		return "packet from brief"
	}
	kinds := make([]string, 0, len(inputs))
	for kind := range inputs {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return fmt.Sprintf("packet from %d input(s): %s", len(inputs), strings.Join(kinds, ", "))
}
