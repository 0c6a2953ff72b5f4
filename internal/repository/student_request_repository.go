package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

const studentRequestColumns = `id, request_type, status, student_id, current_class_id, target_class_id, target_session_id,
       makeup_session_id, effective_date, reason, submitted_by, submitted_at, decided_by, decided_at, note`

// StudentRequestRepository persists student requests.
type StudentRequestRepository struct {
	db *sqlx.DB
}

// NewStudentRequestRepository constructs the repository.
func NewStudentRequestRepository(db *sqlx.DB) *StudentRequestRepository {
	return &StudentRequestRepository{db: db}
}

// Create inserts a new request row.
func (r *StudentRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_requests
	(id, request_type, status, student_id, current_class_id, target_class_id, target_session_id, makeup_session_id,
	 effective_date, reason, submitted_by, submitted_at, decided_by, decided_at, note)
	VALUES (:id, :request_type, :status, :student_id, :current_class_id, :target_class_id, :target_session_id, :makeup_session_id,
	 :effective_date, :reason, :submitted_by, :submitted_at, :decided_by, :decided_at, :note)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, req); err != nil {
		return fmt.Errorf("create student request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *StudentRequestRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error) {
	query := `SELECT ` + studentRequestColumns + ` FROM student_requests WHERE id = $1`
	var req models.StudentRequest
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *StudentRequestRepository) List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + studentRequestColumns + ` FROM student_requests`)

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			marks[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(marks, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("(current_class_id = $%d OR target_class_id = $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.StudentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return requests, nil
}

// ExistsActive reports whether a PENDING or APPROVED request of the type targets the session.
func (r *StudentRequestRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID string, requestType models.RequestType, targetSessionID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_requests
WHERE student_id = $1 AND request_type = $2 AND target_session_id = $3 AND status IN ('PENDING', 'APPROVED'))`
	var exists bool
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, studentID, requestType, targetSessionID); err != nil {
		return false, fmt.Errorf("check active request: %w", err)
	}
	return exists, nil
}

// CountApprovedTransfers counts APPROVED transfers of the student out of classes of a subject.
func (r *StudentRequestRepository) CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_requests r JOIN classes c ON c.id = r.current_class_id
WHERE r.student_id = $1 AND c.subject_id = $2 AND r.request_type = 'TRANSFER' AND r.status = 'APPROVED'`
	var count int
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &count, query, studentID, subjectID); err != nil {
		return 0, fmt.Errorf("count approved transfers: %w", err)
	}
	return count, nil
}

// HasPendingTransfer reports whether a PENDING transfer out of the class exists for the student.
func (r *StudentRequestRepository) HasPendingTransfer(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_requests
WHERE student_id = $1 AND current_class_id = $2 AND request_type = 'TRANSFER' AND status = 'PENDING')`
	var exists bool
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, studentID, classID); err != nil {
		return false, fmt.Errorf("check pending transfer: %w", err)
	}
	return exists, nil
}

// UpdateDecisionParams groups the columns written when a request leaves PENDING.
type UpdateDecisionParams struct {
	ID        string
	Status    models.RequestStatus
	DecidedBy *string
	DecidedAt time.Time
	Note      *string
}

// UpdateDecision records the outcome only while the request is still PENDING; otherwise it
// returns sql.ErrNoRows.
func (r *StudentRequestRepository) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, params UpdateDecisionParams) error {
	query := fmt.Sprintf(`UPDATE student_requests SET status = :status, decided_by = :decided_by, decided_at = :decided_at,
       note = COALESCE(:note, note)
WHERE id = :id AND status = '%s'`, models.RequestStatusPending)
	result, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, map[string]interface{}{
		"id":         params.ID,
		"status":     params.Status,
		"decided_by": params.DecidedBy,
		"decided_at": params.DecidedAt,
		"note":       params.Note,
	})
	if err != nil {
		return fmt.Errorf("update student request decision: %w", err)
	}
	return requireAffected(result, "update student request decision")
}

// ExpirePending cancels PENDING requests submitted before cutoff, appending marker to the note.
func (r *StudentRequestRepository) ExpirePending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, marker string, at time.Time) ([]models.StudentRequest, error) {
	query := `UPDATE student_requests SET status = 'CANCELLED', decided_at = $1,
       note = CASE WHEN COALESCE(note, '') = '' THEN $2 ELSE note || E'\n' || $2 END
WHERE status = 'PENDING' AND submitted_at < $3
RETURNING ` + studentRequestColumns
	var expired []models.StudentRequest
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &expired, query, at, marker, cutoff); err != nil {
		return nil, fmt.Errorf("expire pending student requests: %w", err)
	}
	return expired, nil
}
