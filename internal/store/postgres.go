// Package store holds the database-backed issue.Repository drivers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"civic-api/internal/apperr"
	"civic-api/internal/issue"
	"civic-api/internal/logger"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	reportIDConstraint    = "issues_report_id_key"
)

const issueColumns = `id, type, latitude, longitude, address, notes, photo_url, status,
	upvote_count, report_id, created_at, updated_at, last_reminder_sent_at`

// Postgres implements issue.Repository on PostgreSQL. Counter changes are
// single UPDATE statements; support changes run in one transaction together
// with the counter change.
type Postgres struct {
	db          *sql.DB
	newReportID issue.ReportIDFunc
}

func AttachDB(db *sql.DB) *Postgres {
	return &Postgres{db: db, newReportID: issue.NewReportID}
}

// WithReportIDs replaces the report id generator.
func (s *Postgres) WithReportIDs(f issue.ReportIDFunc) *Postgres {
	s.newReportID = f
	return s
}

func (s *Postgres) DB() *sql.DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*issue.Issue, error) {
	var (
		it       issue.Issue
		status   string
		notes    sql.NullString
		photo    sql.NullString
		reminded sql.NullTime
	)
	err := row.Scan(&it.ID, &it.Type, &it.Coordinate.Latitude, &it.Coordinate.Longitude, &it.Address,
		&notes, &photo, &status, &it.UpvoteCount, &it.ReportID, &it.CreatedAt, &it.UpdatedAt, &reminded)
	if err != nil {
		return nil, err
	}
	it.Status = issue.Status(status)
	if notes.Valid {
		it.Notes = &notes.String
	}
	if photo.Valid {
		it.PhotoURL = &photo.String
	}
	if reminded.Valid {
		t := reminded.Time
		it.LastReminderSentAt = &t
	}
	return &it, nil
}

// one scans a single-row result, mapping no rows to (nil, nil).
func one(row *sql.Row) (*issue.Issue, error) {
	it, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "scan issue")
	}
	return it, nil
}

func pqCode(err error) (pq.ErrorCode, string) {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code, pe.Constraint
	}
	return "", ""
}

func (s *Postgres) Create(ctx context.Context, in issue.Input) (*issue.Issue, error) {
	if err := issue.ValidateInput(in); err != nil {
		return nil, err
	}
	status := issue.StatusReported
	if in.Status != nil {
		status = *in.Status
	}
	c := in.Coordinate()
	for attempt := 1; attempt <= issue.MaxReportIDAttempts; attempt++ {
		reportID := s.newReportID()
		row := s.db.QueryRowContext(ctx, `INSERT INTO issues(type, latitude, longitude, address, notes, photo_url, status, report_id)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+issueColumns,
			in.Type, c.Latitude, c.Longitude, in.Address, in.Notes, in.PhotoURL, string(status), reportID)
		it, err := scanIssue(row)
		if err == nil {
			return it, nil
		}
		if code, constraint := pqCode(err); code == pqUniqueViolation && constraint == reportIDConstraint {
			logger.L().Warn("report_id_collision", "report_id", reportID, "attempt", attempt)
			continue
		}
		return nil, apperr.Wrap(apperr.Internal, err, "insert issue")
	}
	return nil, apperr.E(apperr.Conflict, "could not allocate a unique report id")
}

func (s *Postgres) GetByID(ctx context.Context, id int64) (*issue.Issue, error) {
	return one(s.db.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE id=$1", id))
}

func (s *Postgres) GetByReportID(ctx context.Context, reportID string) (*issue.Issue, error) {
	return one(s.db.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE report_id=$1", reportID))
}

func (s *Postgres) List(ctx context.Context) ([]issue.Issue, error) {
	return s.query(ctx, "SELECT "+issueColumns+" FROM issues ORDER BY created_at DESC, id DESC")
}

func (s *Postgres) query(ctx context.Context, q string, args ...any) ([]issue.Issue, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "query issues")
	}
	defer rows.Close()
	out := []issue.Issue{}
	for rows.Next() {
		it, err := scanIssue(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "scan issue")
		}
		out = append(out, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "iterate issues")
	}
	return out, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, id int64, status issue.Status) (*issue.Issue, error) {
	if !status.Valid() {
		return nil, apperr.E(apperr.Validation, "unknown status %q", status)
	}
	return one(s.db.QueryRowContext(ctx,
		"UPDATE issues SET status=$2, updated_at=now() WHERE id=$1 RETURNING "+issueColumns, id, string(status)))
}

const (
	incrementSQL = "UPDATE issues SET upvote_count=upvote_count+1, updated_at=now() WHERE id=$1 RETURNING " + issueColumns
	decrementSQL = "UPDATE issues SET upvote_count=GREATEST(upvote_count-1, 0), updated_at=now() WHERE id=$1 RETURNING " + issueColumns
)

func (s *Postgres) IncrementUpvoteCount(ctx context.Context, id int64) (*issue.Issue, error) {
	return one(s.db.QueryRowContext(ctx, incrementSQL, id))
}

func (s *Postgres) DecrementUpvoteCount(ctx context.Context, id int64) (*issue.Issue, error) {
	return one(s.db.QueryRowContext(ctx, decrementSQL, id))
}

func (s *Postgres) FindSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Support, error) {
	var sp issue.Support
	err := s.db.QueryRowContext(ctx,
		"SELECT id, issue_id, device_id, created_at FROM supports WHERE issue_id=$1 AND device_id=$2", issueID, deviceID).
		Scan(&sp.ID, &sp.IssueID, &sp.DeviceID, &sp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "find support")
	}
	return &sp, nil
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) (*issue.Issue, error)) (*issue.Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "begin tx")
	}
	it, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "commit tx")
	}
	return it, nil
}

func (s *Postgres) AddSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	return s.withTx(ctx, func(tx *sql.Tx) (*issue.Issue, error) {
		var sid int64
		err := tx.QueryRowContext(ctx, `INSERT INTO supports(issue_id, device_id) VALUES($1,$2)
			ON CONFLICT (device_id, issue_id) DO NOTHING RETURNING id`, issueID, deviceID).Scan(&sid)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.E(apperr.Conflict, "already supported")
		}
		if err != nil {
			if code, _ := pqCode(err); code == pqForeignKeyViolation {
				return nil, apperr.E(apperr.NotFound, "issue %d not found", issueID)
			}
			return nil, apperr.Wrap(apperr.Internal, err, "insert support")
		}
		it, err := scanIssue(tx.QueryRowContext(ctx, incrementSQL, issueID))
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "increment upvote count")
		}
		return it, nil
	})
}

func (s *Postgres) RemoveSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	return s.withTx(ctx, func(tx *sql.Tx) (*issue.Issue, error) {
		var sid int64
		err := tx.QueryRowContext(ctx, "DELETE FROM supports WHERE issue_id=$1 AND device_id=$2 RETURNING id", issueID, deviceID).Scan(&sid)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.E(apperr.NotFound, "support not found")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "delete support")
		}
		it, err := scanIssue(tx.QueryRowContext(ctx, decrementSQL, issueID))
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "decrement upvote count")
		}
		return it, nil
	})
}

func (s *Postgres) CountSupports(ctx context.Context, issueID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM supports WHERE issue_id=$1", issueID).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "count supports")
	}
	return n, nil
}

func (s *Postgres) ListReminderCandidates(ctx context.Context, olderThan, resendBefore time.Time, limit int) ([]issue.Issue, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	return s.query(ctx, `SELECT `+issueColumns+` FROM issues
		WHERE status <> 'resolved' AND created_at < $1
		  AND (last_reminder_sent_at IS NULL OR last_reminder_sent_at < $2)
		ORDER BY created_at ASC, id ASC LIMIT $3`, olderThan, resendBefore, lim)
}

func (s *Postgres) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE issues SET last_reminder_sent_at=$2 WHERE id=$1", id, at)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mark reminder")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.NotFound, "issue %d not found", id)
	}
	return nil
}

var _ issue.Repository = (*Postgres)(nil)
