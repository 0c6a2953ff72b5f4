package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// TeacherRequestRepository expires stale teacher requests.
type TeacherRequestRepository struct {
	db *sqlx.DB
}

// NewTeacherRequestRepository constructs the repository.
func NewTeacherRequestRepository(db *sqlx.DB) *TeacherRequestRepository {
	return &TeacherRequestRepository{db: db}
}

// ExpirePending cancels PENDING teacher requests submitted before cutoff, appending marker to the note.
func (r *TeacherRequestRepository) ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string) ([]models.TeacherRequest, error) {
	const query = `UPDATE teacher_requests SET status = 'CANCELLED',
       note = CASE WHEN COALESCE(note, '') = '' THEN $1 ELSE note || E'\n' || $1 END
WHERE status = 'PENDING' AND submitted_at < $2
RETURNING id, teacher_id, session_id, request_type, status, submitted_at, note`
	var expired []models.TeacherRequest
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &expired, query, marker, cutoff); err != nil {
		return nil, fmt.Errorf("expire pending teacher requests: %w", err)
	}
	return expired, nil
}
