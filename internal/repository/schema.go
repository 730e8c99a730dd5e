package repository

const (
	tableJobs      = "plan_jobs"
	tableArtifacts = "plan_job_artifacts"
	tableAnalyses  = "plan_analyses"
)

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS plan_jobs (
		id          UUID PRIMARY KEY,
		file_path   TEXT NOT NULL,
		file_type   TEXT NOT NULL CHECK (file_type IN ('pdf', 'image')),
		status      TEXT NOT NULL DEFAULT 'queued',
		error       TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS plan_jobs_status_created_idx ON plan_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS plan_job_artifacts (
		id             UUID PRIMARY KEY,
		job_id         UUID NOT NULL REFERENCES plan_jobs (id) ON DELETE CASCADE,
		kind           TEXT NOT NULL,
		artifact_path  TEXT NOT NULL,
		page_no        INTEGER,
		meta           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS plan_job_artifacts_job_idx ON plan_job_artifacts (job_id)`,
	`CREATE TABLE IF NOT EXISTS plan_analyses (
		id            UUID PRIMARY KEY,
		job_id        UUID NOT NULL UNIQUE REFERENCES plan_jobs (id) ON DELETE CASCADE,
		model         TEXT NOT NULL,
		quantities    JSONB NOT NULL,
		confidence    JSONB NOT NULL,
		evidence      JSONB NOT NULL,
		needs_review  BOOLEAN NOT NULL DEFAULT false,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS plan_jobs (
		id          TEXT PRIMARY KEY,
		file_path   TEXT NOT NULL,
		file_type   TEXT NOT NULL CHECK (file_type IN ('pdf', 'image')),
		status      TEXT NOT NULL DEFAULT 'queued',
		error       TEXT,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS plan_jobs_status_created_idx ON plan_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS plan_job_artifacts (
		id             TEXT PRIMARY KEY,
		job_id         TEXT NOT NULL REFERENCES plan_jobs (id) ON DELETE CASCADE,
		kind           TEXT NOT NULL,
		artifact_path  TEXT NOT NULL,
		page_no        INTEGER,
		meta           TEXT NOT NULL DEFAULT '{}',
		created_at     DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS plan_job_artifacts_job_idx ON plan_job_artifacts (job_id)`,
	`CREATE TABLE IF NOT EXISTS plan_analyses (
		id            TEXT PRIMARY KEY,
		job_id        TEXT NOT NULL UNIQUE REFERENCES plan_jobs (id) ON DELETE CASCADE,
		model         TEXT NOT NULL,
		quantities    TEXT NOT NULL,
		confidence    TEXT NOT NULL,
		evidence      TEXT NOT NULL,
		needs_review  BOOLEAN NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,
}
