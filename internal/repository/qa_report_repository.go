package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// QAPlaceholderParams selects DONE sessions that should receive a system placeholder report.
// SessionIDs restricts to specific sessions; otherwise Since bounds the session date (zero = no bound).
type QAPlaceholderParams struct {
	SessionIDs []string
	Since      time.Time
	Content    string
	At         time.Time
}

// QAReportRepository writes quality-assurance reports.
type QAReportRepository struct {
	db *sqlx.DB
}

// NewQAReportRepository constructs the repository.
func NewQAReportRepository(db *sqlx.DB) *QAReportRepository {
	return &QAReportRepository{db: db}
}

// CreatePlaceholders inserts one SUBMITTED classroom observation per matching DONE session that
// has none yet and returns the covered session ids.
func (r *QAReportRepository) CreatePlaceholders(ctx context.Context, exec sqlx.ExtContext, params QAPlaceholderParams) ([]string, error) {
	query := `INSERT INTO qa_reports (id, session_id, class_id, report_type, status, content, author_kind, created_at)
SELECT gen_random_uuid(), s.id, s.class_id, 'CLASSROOM_OBSERVATION', 'SUBMITTED', $1, 'SYSTEM', $2
FROM sessions s
WHERE s.status = 'DONE'
  AND NOT EXISTS (SELECT 1 FROM qa_reports q WHERE q.session_id = s.id AND q.status = 'SUBMITTED')`
	args := []interface{}{params.Content, params.At}
	switch {
	case params.SessionIDs != nil:
		if len(params.SessionIDs) == 0 {
			return nil, nil
		}
		args = append(args, pqStringArray(params.SessionIDs))
		query += " AND s.id = ANY($3)"
	case !params.Since.IsZero():
		args = append(args, dateOnly(params.Since))
		query += " AND s.date >= $3"
	}
	query += " RETURNING session_id"

	var sessionIDs []string
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &sessionIDs, query, args...); err != nil {
		return nil, fmt.Errorf("create qa placeholders: %w", err)
	}
	return sessionIDs, nil
}
