package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- RUN TABLE
    -- ==========================================================================
    -- One row per pipeline execution. version is the optimistic concurrency
    -- counter: every mutating operation is a conditional update predicated on
    -- the expected version and increments it by exactly 1.
    DEFINE TABLE IF NOT EXISTS run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS task_type ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON run TYPE string DEFAULT "created";
    DEFINE FIELD IF NOT EXISTS current_stage ON run TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS version ON run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS claim_owner ON run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS claim_time ON run TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS parent_run ON run TYPE option<record<run>>;
    DEFINE FIELD IF NOT EXISTS reject_reason ON run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS models ON run TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS chair_model ON run TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON run TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON run TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS run_project ON run FIELDS project;
    DEFINE INDEX IF NOT EXISTS run_status ON run FIELDS status;

    -- ==========================================================================
    -- SNAPSHOT TABLE (append-only stage snapshots)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS snapshot SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run ON snapshot TYPE record<run>;
    DEFINE FIELD IF NOT EXISTS stage ON snapshot TYPE string;
    DEFINE FIELD IF NOT EXISTS schema_version ON snapshot TYPE int;
    DEFINE FIELD IF NOT EXISTS artifacts ON snapshot TYPE array<object> FLEXIBLE;
    REMOVE FIELD IF EXISTS artifacts.* ON snapshot;
    DEFINE FIELD artifacts.* ON snapshot TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS summary ON snapshot TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS created_at ON snapshot TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS snapshot_run ON snapshot FIELDS run;
    DEFINE INDEX IF NOT EXISTS snapshot_run_stage ON snapshot FIELDS run, stage;

    -- ==========================================================================
    -- COMMIT RECORD TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS commit_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run ON commit_record TYPE record<run>;
    DEFINE FIELD IF NOT EXISTS target_commit_id ON commit_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS manifest ON commit_record TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS status ON commit_record TYPE string DEFAULT "staging";
    DEFINE FIELD IF NOT EXISTS error ON commit_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON commit_record TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON commit_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS commit_record_run ON commit_record FIELDS run;
`
