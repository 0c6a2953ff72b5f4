package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

const sessionColumns = `s.id, s.class_id, s.subject_session_id, s.date, s.time_slot_id,
       to_char(ts.start_time, 'HH24:MI') AS start_time, to_char(ts.end_time, 'HH24:MI') AS end_time,
       s.status, s.teacher_id, s.teacher_note, s.resource_id`

const sessionDetailColumns = sessionColumns + `,
       c.code AS class_code, c.branch_id, c.modality, c.max_capacity,
       ss.subject_id, ss.sequence_no, ss.topic,
       (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'ENROLLED')
     + (SELECT COUNT(*) FROM student_sessions mk WHERE mk.session_id = s.id AND mk.is_makeup) AS enrolled_count`

const sessionDetailFrom = `FROM sessions s
JOIN time_slots ts ON ts.id = s.time_slot_id
JOIN classes c ON c.id = s.class_id
JOIN subject_sessions ss ON ss.id = s.subject_session_id`

// SessionRepository reads and advances scheduled sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetDetail loads a session joined with its class and syllabus point.
func (r *SessionRepository) GetDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	query := `SELECT ` + sessionDetailColumns + ` ` + sessionDetailFrom + ` WHERE s.id = $1`
	var detail models.SessionDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockDetail is GetDetail holding a row lock on the session until the transaction ends.
func (r *SessionRepository) LockDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	query := `SELECT ` + sessionDetailColumns + ` ` + sessionDetailFrom + ` WHERE s.id = $1 FOR UPDATE OF s`
	var detail models.SessionDetail
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FirstPlannedOnOrAfter returns the earliest PLANNED session of a class on or after date.
func (r *SessionRepository) FirstPlannedOnOrAfter(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
FROM sessions s JOIN time_slots ts ON ts.id = s.time_slot_id
WHERE s.class_id = $1 AND s.date >= $2 AND s.status = 'PLANNED'
ORDER BY s.date ASC, ts.start_time ASC LIMIT 1`
	var session models.Session
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &session, query, classID, dateOnly(date)); err != nil {
		return nil, err
	}
	return &session, nil
}

// LastBefore returns the latest non-cancelled session of a class strictly before date.
func (r *SessionRepository) LastBefore(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
FROM sessions s JOIN time_slots ts ON ts.id = s.time_slot_id
WHERE s.class_id = $1 AND s.date < $2 AND s.status <> 'CANCELLED'
ORDER BY s.date DESC, ts.start_time DESC LIMIT 1`
	var session models.Session
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &session, query, classID, dateOnly(date)); err != nil {
		return nil, err
	}
	return &session, nil
}

// MakeupCandidateQuery bounds the makeup candidate scan.
type MakeupCandidateQuery struct {
	SubjectSessionID string
	ExcludeSessionID string
	StudentID        string
	FromDate         time.Time
}

// ListMakeupCandidates returns PLANNED sessions teaching the same syllabus point from FromDate on,
// skipping sessions the student already has an attendance record for.
func (r *SessionRepository) ListMakeupCandidates(ctx context.Context, q MakeupCandidateQuery) ([]models.SessionDetail, error) {
	query := `SELECT ` + sessionDetailColumns + ` ` + sessionDetailFrom + `
WHERE s.subject_session_id = $1
  AND s.id <> $2
  AND s.status = 'PLANNED'
  AND s.date >= $3
  AND c.status IN ('SCHEDULED', 'ONGOING')
  AND NOT EXISTS (SELECT 1 FROM student_sessions own WHERE own.session_id = s.id AND own.student_id = $4)
ORDER BY s.date ASC, ts.start_time ASC, s.id ASC`
	var sessions []models.SessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, q.SubjectSessionID, q.ExcludeSessionID, dateOnly(q.FromDate), q.StudentID); err != nil {
		return nil, fmt.Errorf("list makeup candidates: %w", err)
	}
	return sessions, nil
}

// ListCoveredPoints returns the syllabus points a class has delivered in DONE sessions.
func (r *SessionRepository) ListCoveredPoints(ctx context.Context, classID string) ([]models.CoveredSyllabusPoint, error) {
	const query = `SELECT ss.id AS subject_session_id, ss.sequence_no, ss.topic, MIN(s.date) AS date
FROM sessions s
JOIN subject_sessions ss ON ss.id = s.subject_session_id
WHERE s.class_id = $1 AND s.status = 'DONE'
GROUP BY ss.id, ss.sequence_no, ss.topic
ORDER BY ss.sequence_no ASC`
	var points []models.CoveredSyllabusPoint
	if err := r.db.SelectContext(ctx, &points, query, classID); err != nil {
		return nil, fmt.Errorf("list covered syllabus points: %w", err)
	}
	return points, nil
}

// CompleteEndedWithNote moves PLANNED sessions that ended before now and carry a teacher note to DONE.
// now must be expressed in the center's timezone.
func (r *SessionRepository) CompleteEndedWithNote(ctx context.Context, exec sqlx.ExtContext, now time.Time) ([]models.CompletedSession, error) {
	const query = `UPDATE sessions s SET status = 'DONE'
FROM time_slots ts
WHERE ts.id = s.time_slot_id
  AND s.status = 'PLANNED'
  AND COALESCE(BTRIM(s.teacher_note), '') <> ''
  AND (s.date + ts.end_time) < $1::timestamp
RETURNING s.id, s.class_id, s.teacher_id, s.date`
	var completed []models.CompletedSession
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &completed, query, wallClock(now)); err != nil {
		return nil, fmt.Errorf("complete sessions with note: %w", err)
	}
	return completed, nil
}

// CompleteEndedWithoutNote force-completes PLANNED sessions without a note that ended before cutoff.
func (r *SessionRepository) CompleteEndedWithoutNote(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.CompletedSession, error) {
	const query = `UPDATE sessions s SET status = 'DONE'
FROM time_slots ts
WHERE ts.id = s.time_slot_id
  AND s.status = 'PLANNED'
  AND COALESCE(BTRIM(s.teacher_note), '') = ''
  AND (s.date + ts.end_time) < $1::timestamp
RETURNING s.id, s.class_id, s.teacher_id, s.date`
	var completed []models.CompletedSession
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &completed, query, wallClock(cutoff)); err != nil {
		return nil, fmt.Errorf("escalate sessions without note: %w", err)
	}
	return completed, nil
}

// ListEndingBetween returns non-cancelled sessions whose end falls in (from, to], with their
// count of still-PLANNED attendance records.
func (r *SessionRepository) ListEndingBetween(ctx context.Context, from, to time.Time) ([]models.ReminderCandidate, error) {
	query := `SELECT ` + sessionColumns + `, c.code AS class_code,
       (SELECT COUNT(*) FROM student_sessions a WHERE a.session_id = s.id AND a.attendance_status = 'PLANNED') AS pending_attendance
FROM sessions s
JOIN time_slots ts ON ts.id = s.time_slot_id
JOIN classes c ON c.id = s.class_id
WHERE s.status <> 'CANCELLED'
  AND (s.date + ts.end_time) > $1::timestamp
  AND (s.date + ts.end_time) <= $2::timestamp
ORDER BY s.date ASC, ts.end_time ASC`
	var candidates []models.ReminderCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, wallClock(from), wallClock(to)); err != nil {
		return nil, fmt.Errorf("list sessions ending between: %w", err)
	}
	return candidates, nil
}
