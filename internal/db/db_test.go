// Package db provides integration tests for SurrealDB run state operations.
package db

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/council-go/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	url := fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port())

	// Point the env-driven tests at the same container.
	os.Setenv("SURREALDB_URL", url)

	testDB, err = NewClient(ctx, Config{
		URL:       url,
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func newRunID() string {
	return uuid.New().String()[:8]
}

// createTestRun creates a run and returns its ID.
func createTestRun(t *testing.T, project string) (*models.Run, string) {
	t.Helper()
	ctx := context.Background()
	id := newRunID()
	run, err := testDB.CreateRun(ctx, id, project, models.TaskPlan, nil, []string{"model-a", "model-b"}, "chair")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run, id
}

// driveToWaiting advances a fresh run to waiting_human and returns its
// final version.
func driveToWaiting(t *testing.T, id string) int {
	t.Helper()
	ctx := context.Background()

	run, err := testDB.BeginRun(ctx, id, 0, models.StagePacket)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	run, err = testDB.AdvanceStage(ctx, id, run.Version, models.StageSynthesis)
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	run, err = testDB.PauseForApproval(ctx, id, run.Version)
	if err != nil {
		t.Fatalf("PauseForApproval: %v", err)
	}
	if run.Status != models.RunStatusWaitingHuman {
		t.Fatalf("status = %s, want waiting_human", run.Status)
	}
	return run.Version
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestCreateAndGetRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	created, id := createTestRun(t, "proj-create")

	if created.Status != models.RunStatusCreated {
		t.Errorf("status = %s, want created", created.Status)
	}
	if created.Version != 0 {
		t.Errorf("version = %d, want 0", created.Version)
	}

	got, err := testDB.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Project != "proj-create" || got.TaskType != models.TaskPlan {
		t.Errorf("got %+v", got)
	}
	if got.ParentRun != nil {
		t.Errorf("parent_run should be nil, got %v", got.ParentRun)
	}
}

func TestGetRunNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, err := testDB.GetRun(ctx, "does-not-exist")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestVersionIncrementsByOne(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-version")

	run, err := testDB.BeginRun(ctx, id, 0, models.StagePacket)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.Version != 1 {
		t.Errorf("after begin: version = %d, want 1", run.Version)
	}

	run, err = testDB.AdvanceStage(ctx, id, 1, models.StageDrafts)
	if err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if run.Version != 2 {
		t.Errorf("after advance: version = %d, want 2", run.Version)
	}

	run, err = testDB.PauseForApproval(ctx, id, 2)
	if err != nil {
		t.Fatalf("PauseForApproval: %v", err)
	}
	if run.Version != 3 {
		t.Errorf("after pause: version = %d, want 3", run.Version)
	}
}

func TestStaleUpdateDoesNotMutate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-stale")

	run, err := testDB.BeginRun(ctx, id, 0, models.StagePacket)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	// Present the pre-begin version: must abort without side effects.
	_, err = testDB.AdvanceStage(ctx, id, 0, models.StageDrafts)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}

	after, err := testDB.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if after.Version != run.Version {
		t.Errorf("version changed on failed update: %d -> %d", run.Version, after.Version)
	}
	if after.CurrentStage != models.StagePacket {
		t.Errorf("stage changed on failed update: %s", after.CurrentStage)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-claim")
	version := driveToWaiting(t, id)

	// Two operators race on the same observed version: exactly one wins.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	owners := []string{"alice", "bob"}
	for i := range owners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = testDB.ClaimRun(ctx, id, version, owners[i])
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrClaimConflict) || errors.Is(err, ErrStaleState) || errors.Is(err, ErrTransactionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins = %d, conflicts = %d, want 1/1", wins, conflicts)
	}
}

func TestClaimIdempotentForSameOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-reclaim")
	version := driveToWaiting(t, id)

	run, err := testDB.ClaimRun(ctx, id, version, "alice")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Same owner may re-claim with the current version.
	run2, err := testDB.ClaimRun(ctx, id, run.Version, "alice")
	if err != nil {
		t.Fatalf("re-claim by same owner: %v", err)
	}
	if run2.Version != run.Version+1 {
		t.Errorf("re-claim version = %d, want %d", run2.Version, run.Version+1)
	}

	// A different owner is rejected.
	_, err = testDB.ClaimRun(ctx, id, run2.Version, "bob")
	if !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("err = %v, want ErrClaimConflict", err)
	}
}

func TestClaimOnWrongStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-wrongstate")

	_, err := testDB.ClaimRun(ctx, id, 0, "alice")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCommitTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-commit")
	version := driveToWaiting(t, id)

	run, err := testDB.ClaimRun(ctx, id, version, "alice")
	if err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}

	// A different owner cannot start the commit.
	_, err = testDB.StartCommit(ctx, id, run.Version, "bob")
	if !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("err = %v, want ErrClaimConflict", err)
	}

	run, err = testDB.StartCommit(ctx, id, run.Version, "alice")
	if err != nil {
		t.Fatalf("StartCommit: %v", err)
	}
	if run.Status != models.RunStatusCommitting {
		t.Errorf("status = %s, want committing", run.Status)
	}

	run, err = testDB.FinishCommit(ctx, id, run.Version, models.RunStatusCommitted)
	if err != nil {
		t.Fatalf("FinishCommit: %v", err)
	}
	if run.Status != models.RunStatusCommitted {
		t.Errorf("status = %s, want committed", run.Status)
	}

	// Terminal: further decisions are invalid transitions.
	_, err = testDB.ClaimRun(ctx, id, run.Version, "alice")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectSpawnsExactlyOneChild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-reject")
	version := driveToWaiting(t, id)

	run, err := testDB.ClaimRun(ctx, id, version, "alice")
	if err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}

	childID := newRunID()
	child, err := testDB.RejectRun(ctx, id, run.Version, "alice", "missing error budget section", childID)
	if err != nil {
		t.Fatalf("RejectRun: %v", err)
	}

	if child.Status != models.RunStatusCreated || child.Version != 0 {
		t.Errorf("child = %+v", child)
	}
	if child.ParentRun == nil || models.MustRecordIDString(*child.ParentRun) != id {
		t.Errorf("child parent_run = %v, want %s", child.ParentRun, id)
	}
	if child.Project != "proj-reject" {
		t.Errorf("child project = %s", child.Project)
	}

	rejected, err := testDB.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rejected.Status != models.RunStatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectReason == nil || *rejected.RejectReason != "missing error budget section" {
		t.Errorf("reject_reason = %v", rejected.RejectReason)
	}

	// The rejected run accepts no further decisions.
	_, err = testDB.ClaimRun(ctx, id, rejected.Version, "bob")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectWithStaleVersionLeavesNoChild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-reject-stale")
	version := driveToWaiting(t, id)

	run, err := testDB.ClaimRun(ctx, id, version, "alice")
	if err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}

	childID := newRunID()
	_, err = testDB.RejectRun(ctx, id, run.Version-1, "alice", "stale", childID)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("err = %v, want ErrStaleState", err)
	}

	// The transaction rolled back: no child run was created.
	_, err = testDB.GetRun(ctx, childID)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("child lookup err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-list-unique")
	driveToWaiting(t, id)

	runs, err := testDB.ListRuns(ctx, "proj-list-unique", models.RunStatusWaitingHuman, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len = %d, want 1", len(runs))
	}

	runs, err = testDB.ListRuns(ctx, "proj-list-unique", models.RunStatusCommitted, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("len = %d, want 0", len(runs))
	}
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestSnapshotAppendAndLatest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-snap")

	first := []models.ArtifactRef{
		{Path: "drafts/a.md", Hash: "aaa", Role: models.RoleDraft, Stage: models.StageDrafts, Model: "model-a"},
	}
	if _, err := testDB.CreateSnapshot(ctx, id, models.StageDrafts, first, "1 draft"); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	second := []models.ArtifactRef{
		{Path: "drafts/a.md", Hash: "aaa", Role: models.RoleDraft, Stage: models.StageDrafts, Model: "model-a"},
		{Path: "drafts/b.md", Hash: "bbb", Role: models.RoleDraft, Stage: models.StageDrafts, Model: "model-b"},
	}
	if _, err := testDB.CreateSnapshot(ctx, id, models.StageDrafts, second, "2 drafts"); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	latest, err := testDB.LatestSnapshot(ctx, id, models.StageDrafts)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil || len(latest.Artifacts) != 2 {
		t.Fatalf("latest = %+v, want 2 artifacts", latest)
	}
	if latest.SchemaVersion != models.SnapshotSchemaVersion {
		t.Errorf("schema_version = %d", latest.SchemaVersion)
	}

	missing, err := testDB.LatestSnapshot(ctx, id, models.StageSynthesis)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing stage should return nil, got %+v", missing)
	}

	all, err := testDB.ListSnapshots(ctx, id)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
}

// =============================================================================
// COMMIT RECORD TESTS
// =============================================================================

func TestCommitRecordLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	_, id := createTestRun(t, "proj-cr")

	manifest := models.Manifest{
		RunID:    id,
		Project:  "proj-cr",
		TaskType: models.TaskPlan,
		Dir:      "versions/20260829_abc123",
		Files: []models.ManifestFile{
			{Path: "synthesis/synthesis.md", Hash: "abc", Size: 42, Role: models.RoleSynthesis, Stage: models.StageSynthesis},
		},
		Approval: models.Approval{Approver: "alice", DecidedAt: time.Now().UTC()},
	}

	rec, err := testDB.CreateCommitRecord(ctx, id, manifest)
	if err != nil {
		t.Fatalf("CreateCommitRecord: %v", err)
	}
	if rec.Status != models.CommitStatusStaging {
		t.Errorf("status = %s, want staging", rec.Status)
	}

	commitID := "deadbeef"
	rec, err = testDB.UpdateCommitRecord(ctx, models.MustRecordIDString(rec.ID), models.CommitStatusCommitted, &commitID, nil)
	if err != nil {
		t.Fatalf("UpdateCommitRecord: %v", err)
	}
	if rec.Status != models.CommitStatusCommitted || rec.TargetCommitID == nil || *rec.TargetCommitID != "deadbeef" {
		t.Errorf("rec = %+v", rec)
	}

	latest, err := testDB.LatestCommitRecord(ctx, id)
	if err != nil {
		t.Fatalf("LatestCommitRecord: %v", err)
	}
	if latest == nil || latest.Status != models.CommitStatusCommitted {
		t.Fatalf("latest = %+v", latest)
	}

	byDir, err := testDB.CommitRecordByDir(ctx, "versions/20260829_abc123")
	if err != nil {
		t.Fatalf("CommitRecordByDir: %v", err)
	}
	if byDir == nil || models.MustRecordIDString(byDir.ID) != models.MustRecordIDString(rec.ID) {
		t.Fatalf("byDir = %+v", byDir)
	}

	none, err := testDB.CommitRecordByDir(ctx, "versions/never-published")
	if err != nil {
		t.Fatalf("CommitRecordByDir: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for unknown dir, got %+v", none)
	}
}
