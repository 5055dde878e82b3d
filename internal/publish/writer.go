// Package publish commits an approved run's artifacts into an external git
// working tree: stage into a directory on the same filesystem, write a
// checksummed manifest, rename once, record the commit, then invoke git.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/raphaelgruber/council-go/internal/workspace"
)

// Layout inside the target root.
const (
	versionsDir  = "versions"
	indexFile    = "index.yaml"
	lockFile     = ".council.lock"
	manifestJSON = "manifest.json"
	manifestMD   = "COMMIT_MANIFEST.md"
)

// Safety rail errors, checked with errors.Is.
var (
	ErrNotARepo  = errors.New("target root is not a git repository")
	ErrDirtyTree = errors.New("target working tree has uncommitted changes")
	ErrLocked    = errors.New("another publish is in progress")
)

// VCS is the external version control surface the writer drives.
type VCS interface {
	IsRepo(ctx context.Context, root string) (bool, error)
	IsClean(ctx context.Context, root string) (bool, error)
	Commit(ctx context.Context, root, message string) (string, error)
}

// Recorder persists commit records. Implemented by db.Client.
type Recorder interface {
	CreateCommitRecord(ctx context.Context, runID string, manifest models.Manifest) (*models.CommitRecord, error)
	UpdateCommitRecord(ctx context.Context, recordID string, status models.CommitStatus, targetCommitID *string, errMsg *string) (*models.CommitRecord, error)
	CommitRecordByDir(ctx context.Context, dir string) (*models.CommitRecord, error)
}

// StagedFile is one artifact destined for the published directory. Path is
// relative to the commit directory.
type StagedFile struct {
	Path  string
	Data  []byte
	Role  models.ArtifactRole
	Stage string
}

// CommitResult reports a successful publish.
type CommitResult struct {
	Dir      string
	CommitID string
	Manifest models.Manifest
}

// Writer publishes approved artifacts into a target working tree.
type Writer struct {
	targetRoot string
	vcs        VCS
	rec        Recorder
	log        *slog.Logger
	now        func() time.Time
}

// NewWriter creates a commit writer for one target root.
func NewWriter(targetRoot string, vcs VCS, rec Recorder, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		targetRoot: targetRoot,
		vcs:        vcs,
		rec:        rec,
		log:        log,
		now:        time.Now,
	}
}

// Commit publishes the files of an approved run. The rename in step 3 is the
// single atomicity guarantee: before it nothing is visible, after it the
// directory is permanent and never deleted, even on VCS failure. Any error
// after the rename leaves the directory in place for manual recovery.
func (w *Writer) Commit(ctx context.Context, run *models.Run, files []StagedFile, approval models.Approval) (*CommitResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("publish run %s: no files to commit", models.MustRecordIDString(run.ID))
	}
	runID := models.MustRecordIDString(run.ID)

	if err := w.checkTarget(ctx); err != nil {
		return nil, err
	}

	unlock, err := w.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	ts := w.now().UTC()
	shortID := runID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	finalRel := filepath.Join(versionsDir, fmt.Sprintf("%s_%s", ts.Format("20060102T150405"), shortID))
	stagingRel := filepath.Join(versionsDir, fmt.Sprintf(".staging-%s-%s", ts.Format("20060102T150405"), shortID))
	stagingAbs := filepath.Join(w.targetRoot, stagingRel)
	finalAbs := filepath.Join(w.targetRoot, finalRel)

	manifest, err := w.stage(stagingAbs, finalRel, run, files, approval, ts)
	if err != nil {
		os.RemoveAll(stagingAbs)
		return nil, err
	}

	record, err := w.rec.CreateCommitRecord(ctx, runID, manifest)
	if err != nil {
		os.RemoveAll(stagingAbs)
		return nil, fmt.Errorf("record publish of run %s: %w", runID, err)
	}
	recordID := models.MustRecordIDString(record.ID)

	// The one atomic step. A crash between here and the staged update is
	// what Reconcile detects.
	if err := os.Rename(stagingAbs, finalAbs); err != nil {
		os.RemoveAll(stagingAbs)
		w.failRecord(ctx, recordID, err)
		return nil, fmt.Errorf("publish run %s: rename into %s: %w", runID, finalRel, err)
	}

	if _, err := w.rec.UpdateCommitRecord(ctx, recordID, models.CommitStatusStaged, nil, nil); err != nil {
		return nil, fmt.Errorf("mark run %s staged (directory %s is published): %w", runID, finalRel, err)
	}

	if err := w.appendIndex(finalRel, run, ts); err != nil {
		w.failRecord(ctx, recordID, err)
		return nil, fmt.Errorf("publish run %s: %w", runID, err)
	}

	message := fmt.Sprintf("council: %s %s (%s) approved by %s", run.Project, run.TaskType, shortID, approval.Approver)
	commitID, err := w.vcs.Commit(ctx, w.targetRoot, message)
	if err != nil {
		w.failRecord(ctx, recordID, err)
		return nil, fmt.Errorf("publish run %s: vcs commit failed, directory %s retained, commit it manually: %w", runID, finalRel, err)
	}

	if _, err := w.rec.UpdateCommitRecord(ctx, recordID, models.CommitStatusCommitted, &commitID, nil); err != nil {
		return nil, fmt.Errorf("mark run %s committed (vcs commit %s succeeded): %w", runID, commitID, err)
	}

	w.log.Info("published run",
		"run", runID,
		"dir", finalRel,
		"commit", commitID,
		"files", len(files))

	return &CommitResult{Dir: finalRel, CommitID: commitID, Manifest: manifest}, nil
}

func (w *Writer) checkTarget(ctx context.Context) error {
	info, err := os.Stat(w.targetRoot)
	if err != nil {
		return fmt.Errorf("target root %s: %w", w.targetRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target root %s is not a directory", w.targetRoot)
	}

	isRepo, err := w.vcs.IsRepo(ctx, w.targetRoot)
	if err != nil {
		return fmt.Errorf("check target repo: %w", err)
	}
	if !isRepo {
		return fmt.Errorf("%s: %w", w.targetRoot, ErrNotARepo)
	}

	clean, err := w.vcs.IsClean(ctx, w.targetRoot)
	if err != nil {
		return fmt.Errorf("check target tree: %w", err)
	}
	if !clean {
		return fmt.Errorf("%s: %w", w.targetRoot, ErrDirtyTree)
	}
	return nil
}

// acquireLock guards against two publishes interleaving in one target root.
func (w *Writer) acquireLock() (func(), error) {
	if err := os.MkdirAll(filepath.Join(w.targetRoot, versionsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create versions dir: %w", err)
	}
	path := filepath.Join(w.targetRoot, versionsDir, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("acquire publish lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d time=%s\n", os.Getpid(), w.now().UTC().Format(time.RFC3339))
	f.Close()
	return func() { os.Remove(path) }, nil
}

// stage writes all files plus both manifest renderings into the staging
// directory and returns the manifest.
func (w *Writer) stage(stagingAbs, finalRel string, run *models.Run, files []StagedFile, approval models.Approval, ts time.Time) (models.Manifest, error) {
	sorted := append([]StagedFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	manifest := models.Manifest{
		RunID:     models.MustRecordIDString(run.ID),
		Project:   run.Project,
		TaskType:  run.TaskType,
		Dir:       filepath.ToSlash(finalRel),
		Approval:  approval,
		CreatedAt: ts,
	}

	for _, f := range sorted {
		abs := filepath.Join(stagingAbs, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return models.Manifest{}, fmt.Errorf("stage %s: %w", f.Path, err)
		}
		if err := os.WriteFile(abs, f.Data, 0o644); err != nil {
			return models.Manifest{}, fmt.Errorf("stage %s: %w", f.Path, err)
		}
		manifest.Files = append(manifest.Files, models.ManifestFile{
			Path:  f.Path,
			Hash:  workspace.Hash(f.Data),
			Size:  int64(len(f.Data)),
			Role:  f.Role,
			Stage: f.Stage,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return models.Manifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stagingAbs, manifestJSON), data, 0o644); err != nil {
		return models.Manifest{}, fmt.Errorf("write %s: %w", manifestJSON, err)
	}
	if err := os.WriteFile(filepath.Join(stagingAbs, manifestMD), []byte(renderManifest(manifest)), 0o644); err != nil {
		return models.Manifest{}, fmt.Errorf("write %s: %w", manifestMD, err)
	}
	return manifest, nil
}

func renderManifest(m models.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Commit Manifest\n\n")
	fmt.Fprintf(&b, "- Run: %s\n", m.RunID)
	fmt.Fprintf(&b, "- Project: %s\n", m.Project)
	fmt.Fprintf(&b, "- Task: %s\n", m.TaskType)
	fmt.Fprintf(&b, "- Approved by: %s at %s\n", m.Approval.Approver, m.Approval.DecidedAt.Format(time.RFC3339))
	if m.Approval.Edited {
		note := m.Approval.EditNote
		if note == "" {
			note = "yes"
		}
		fmt.Fprintf(&b, "- Edited: %s\n", note)
	}
	fmt.Fprintf(&b, "\n| File | Stage | Size | SHA-256 |\n|---|---|---|---|\n")
	for _, f := range m.Files {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", f.Path, f.Stage, f.Size, f.Hash)
	}
	return b.String()
}

// failRecord marks the record commit_failed, best effort.
func (w *Writer) failRecord(ctx context.Context, recordID string, cause error) {
	msg := cause.Error()
	if _, err := w.rec.UpdateCommitRecord(ctx, recordID, models.CommitStatusFailed, nil, &msg); err != nil {
		w.log.Error("failed to record publish failure", "record", recordID, "cause", cause, "error", err)
	}
}
