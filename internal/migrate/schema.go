package migrate

import (
	"context"
	"database/sql"

	"civic-api/internal/logger"
)

// EnsureSchema creates the issue tables on first start. Statements are
// idempotent so it runs on every boot.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			address TEXT NOT NULL,
			notes TEXT,
			photo_url TEXT,
			status TEXT NOT NULL DEFAULT 'reported',
			upvote_count BIGINT NOT NULL DEFAULT 0 CHECK (upvote_count >= 0),
			report_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_reminder_sent_at TIMESTAMPTZ,
			CONSTRAINT issues_report_id_key UNIQUE (report_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status)`,
		`CREATE TABLE IF NOT EXISTS supports (
			id BIGSERIAL PRIMARY KEY,
			issue_id BIGINT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT supports_device_issue_key UNIQUE (device_id, issue_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_supports_issue ON supports(issue_id)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
