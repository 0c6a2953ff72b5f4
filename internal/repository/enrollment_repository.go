package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.class_id, e.status, e.join_session_id, e.left_session_id,
       e.enrolled_at, e.left_at, e.capacity_override, e.override_reason,
       c.code AS class_code, c.subject_id, c.branch_id, c.modality
FROM enrollments e JOIN classes c ON c.id = e.class_id`

// EnrollmentRepository persists student-class bindings.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindActive returns the ENROLLED enrollment of a student in a class.
func (r *EnrollmentRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND e.class_id = $2 AND e.status = 'ENROLLED'`
	var enrollment models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &enrollment, query, studentID, classID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockActive is FindActive holding a row lock on the enrollment until the transaction ends.
// Submissions by one student against one class queue behind it.
func (r *EnrollmentRepository) LockActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND e.class_id = $2 AND e.status = 'ENROLLED' FOR UPDATE OF e`
	var enrollment models.EnrollmentDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &enrollment, query, studentID, classID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListActiveByStudent returns every ENROLLED enrollment of the student.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND e.status = 'ENROLLED' ORDER BY e.enrolled_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments
	(id, student_id, class_id, status, join_session_id, left_session_id, enrolled_at, left_at, capacity_override, override_reason)
	VALUES (:id, :student_id, :class_id, :status, :join_session_id, :left_session_id, :enrolled_at, :left_at, :capacity_override, :override_reason)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Close withdraws an ENROLLED enrollment, recording the leave marker. Returns sql.ErrNoRows when
// the enrollment is no longer active.
func (r *EnrollmentRepository) Close(ctx context.Context, exec sqlx.ExtContext, id string, leftSessionID *string, leftAt time.Time) error {
	const query = `UPDATE enrollments SET status = 'WITHDRAWN', left_session_id = $1, left_at = $2
WHERE id = $3 AND status = 'ENROLLED'`
	result, err := pick(r.db, exec).ExecContext(ctx, query, leftSessionID, leftAt, id)
	if err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	return requireAffected(result, "close enrollment")
}
