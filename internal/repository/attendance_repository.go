package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

// AttendanceRepository persists per-student per-session attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Get loads the attendance record for a student and session.
func (r *AttendanceRepository) Get(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	const query = `SELECT student_id, session_id, attendance_status, homework_status, is_makeup,
       makeup_session_id, original_session_id, recorded_at, note
FROM student_sessions WHERE student_id = $1 AND session_id = $2`
	var record models.StudentSession
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &record, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkExcused sets the student's record for a session to EXCUSED, creating it when missing.
func (r *AttendanceRepository) MarkExcused(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, note *string, at time.Time) error {
	const query = `INSERT INTO student_sessions (student_id, session_id, attendance_status, homework_status, is_makeup, recorded_at, note)
VALUES ($1, $2, 'EXCUSED', 'NO_HOMEWORK', FALSE, $3, $4)
ON CONFLICT (student_id, session_id)
DO UPDATE SET attendance_status = 'EXCUSED', recorded_at = EXCLUDED.recorded_at,
              note = COALESCE(EXCLUDED.note, student_sessions.note)`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, studentID, sessionID, at, note); err != nil {
		return fmt.Errorf("mark attendance excused: %w", err)
	}
	return nil
}

// LinkMakeup points the original record at the makeup session and plans the makeup attendance.
func (r *AttendanceRepository) LinkMakeup(ctx context.Context, exec sqlx.ExtContext, studentID, originalSessionID, makeupSessionID string) error {
	target := pick(r.db, exec)
	const linkOriginal = `UPDATE student_sessions SET makeup_session_id = $1 WHERE student_id = $2 AND session_id = $3`
	if _, err := target.ExecContext(ctx, linkOriginal, makeupSessionID, studentID, originalSessionID); err != nil {
		return fmt.Errorf("link original attendance: %w", err)
	}
	const planMakeup = `INSERT INTO student_sessions (student_id, session_id, attendance_status, homework_status, is_makeup, original_session_id)
VALUES ($1, $2, 'PLANNED', 'NO_HOMEWORK', TRUE, $3)
ON CONFLICT (student_id, session_id)
DO UPDATE SET is_makeup = TRUE, original_session_id = EXCLUDED.original_session_id, attendance_status = 'PLANNED'`
	if _, err := target.ExecContext(ctx, planMakeup, studentID, makeupSessionID, originalSessionID); err != nil {
		return fmt.Errorf("plan makeup attendance: %w", err)
	}
	return nil
}

// SeedClass plans attendance for every PLANNED session of the class from the given date.
func (r *AttendanceRepository) SeedClass(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error) {
	const query = `INSERT INTO student_sessions (student_id, session_id, attendance_status, homework_status, is_makeup)
SELECT $1, s.id, 'PLANNED', 'NO_HOMEWORK', FALSE FROM sessions s
WHERE s.class_id = $2 AND s.date >= $3 AND s.status = 'PLANNED'
ON CONFLICT (student_id, session_id) DO NOTHING`
	result, err := pick(r.db, exec).ExecContext(ctx, query, studentID, classID, dateOnly(from))
	if err != nil {
		return 0, fmt.Errorf("seed class attendance: %w", err)
	}
	return affectedCount(result, "seed class attendance")
}

// DropPlanned removes still-PLANNED regular attendance of the student in a class from the given date.
func (r *AttendanceRepository) DropPlanned(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int, error) {
	const query = `DELETE FROM student_sessions ss USING sessions s
WHERE ss.session_id = s.id AND ss.student_id = $1 AND s.class_id = $2 AND s.date >= $3
  AND ss.attendance_status = 'PLANNED' AND NOT ss.is_makeup`
	result, err := pick(r.db, exec).ExecContext(ctx, query, studentID, classID, dateOnly(from))
	if err != nil {
		return 0, fmt.Errorf("drop planned attendance: %w", err)
	}
	return affectedCount(result, "drop planned attendance")
}

// DefaultPlannedToAbsent resolves PLANNED records of the given sessions to ABSENT.
func (r *AttendanceRepository) DefaultPlannedToAbsent(ctx context.Context, exec sqlx.ExtContext, sessionIDs []string, at time.Time) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	const query = `UPDATE student_sessions SET attendance_status = 'ABSENT', recorded_at = $1
WHERE session_id = ANY($2) AND attendance_status = 'PLANNED'`
	result, err := pick(r.db, exec).ExecContext(ctx, query, at, pqStringArray(sessionIDs))
	if err != nil {
		return 0, fmt.Errorf("default planned attendance: %w", err)
	}
	return affectedCount(result, "default planned attendance")
}

// ListCommitted returns PLANNED sessions between from and to that the student is planned to attend.
func (r *AttendanceRepository) ListCommitted(ctx context.Context, studentID string, from, to time.Time) ([]models.CommittedSession, error) {
	query := `SELECT ` + sessionColumns + `, a.is_makeup
FROM student_sessions a
JOIN sessions s ON s.id = a.session_id
JOIN time_slots ts ON ts.id = s.time_slot_id
WHERE a.student_id = $1 AND a.attendance_status = 'PLANNED' AND s.status = 'PLANNED'
  AND s.date BETWEEN $2 AND $3
ORDER BY s.date ASC, ts.start_time ASC`
	var sessions []models.CommittedSession
	if err := r.db.SelectContext(ctx, &sessions, query, studentID, dateOnly(from), dateOnly(to)); err != nil {
		return nil, fmt.Errorf("list committed sessions: %w", err)
	}
	return sessions, nil
}

// ListAttendedPoints returns syllabus points the student attended (PRESENT) in a class.
func (r *AttendanceRepository) ListAttendedPoints(ctx context.Context, studentID, classID string) ([]models.AttendedSyllabusPoint, error) {
	const query = `SELECT DISTINCT ss.id AS subject_session_id, ss.sequence_no
FROM student_sessions a
JOIN sessions s ON s.id = a.session_id
JOIN subject_sessions ss ON ss.id = s.subject_session_id
WHERE a.student_id = $1 AND s.class_id = $2 AND a.attendance_status = 'PRESENT'
ORDER BY ss.sequence_no ASC`
	var points []models.AttendedSyllabusPoint
	if err := r.db.SelectContext(ctx, &points, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("list attended syllabus points: %w", err)
	}
	return points, nil
}

// MissedSessionQuery bounds the missed-session scan.
type MissedSessionQuery struct {
	StudentID        string
	Since            time.Time
	Today            time.Time
	ExcludeRequested bool
}

// QueryMissed streams DONE sessions the student was absent from in [Since, Today), most recent
// first. The caller must Close the cursor.
func (r *AttendanceRepository) QueryMissed(ctx context.Context, q MissedSessionQuery) (RowCursor, error) {
	const query = `SELECT session_id, class_id, class_code, subject_session_id, sequence_no, topic, date,
       start_time, end_time, has_excused_absence, has_active_makeup
FROM (
  SELECT s.id AS session_id, s.class_id, c.code AS class_code, s.subject_session_id,
         ss.sequence_no, ss.topic, s.date,
         to_char(ts.start_time, 'HH24:MI') AS start_time, to_char(ts.end_time, 'HH24:MI') AS end_time,
         ts.start_time AS slot_start,
         EXISTS (SELECT 1 FROM student_requests r
                 WHERE r.student_id = a.student_id AND r.target_session_id = s.id
                   AND r.request_type = 'ABSENCE' AND r.status = 'APPROVED') AS has_excused_absence,
         EXISTS (SELECT 1 FROM student_requests r
                 WHERE r.student_id = a.student_id AND r.target_session_id = s.id
                   AND r.request_type = 'MAKEUP' AND r.status IN ('PENDING', 'APPROVED')) AS has_active_makeup
  FROM student_sessions a
  JOIN sessions s ON s.id = a.session_id
  JOIN time_slots ts ON ts.id = s.time_slot_id
  JOIN classes c ON c.id = s.class_id
  JOIN subject_sessions ss ON ss.id = s.subject_session_id
  WHERE a.student_id = $1 AND a.attendance_status = 'ABSENT' AND NOT a.is_makeup
    AND s.status = 'DONE' AND s.date >= $2 AND s.date < $3
) missed
WHERE NOT ($4 AND (missed.has_active_makeup OR missed.has_excused_absence))
ORDER BY missed.date DESC, missed.slot_start DESC, missed.session_id ASC`
	rows, err := r.db.QueryxContext(ctx, query, q.StudentID, dateOnly(q.Since), dateOnly(q.Today), q.ExcludeRequested)
	if err != nil {
		return nil, fmt.Errorf("query missed sessions: %w", err)
	}
	return rows, nil
}
