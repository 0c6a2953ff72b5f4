package models

import "time"

// MissedSessionRow is one row of the missed-session scan.
type MissedSessionRow struct {
	SessionID              string    `db:"session_id"`
	ClassID                string    `db:"class_id"`
	ClassCode              string    `db:"class_code"`
	SubjectSessionID       string    `db:"subject_session_id"`
	SequenceNo             int       `db:"sequence_no"`
	Topic                  string    `db:"topic"`
	Date                   time.Time `db:"date"`
	StartTime              string    `db:"start_time"`
	EndTime                string    `db:"end_time"`
	HasExcusedAbsence      bool      `db:"has_excused_absence"`
	HasActiveMakeupRequest bool      `db:"has_active_makeup"`
}

// CoveredSyllabusPoint is a syllabus point a class has already delivered.
type CoveredSyllabusPoint struct {
	SubjectSessionID string    `db:"subject_session_id"`
	SequenceNo       int       `db:"sequence_no"`
	Topic            string    `db:"topic"`
	Date             time.Time `db:"date"`
}

// ReminderCandidate is a session near one of the reminder thresholds.
type ReminderCandidate struct {
	Session
	ClassCode         string `db:"class_code"`
	PendingAttendance int    `db:"pending_attendance"`
}

// CompletedSession identifies a session the lifecycle job moved to DONE.
type CompletedSession struct {
	ID        string    `db:"id"`
	ClassID   string    `db:"class_id"`
	TeacherID *string   `db:"teacher_id"`
	Date      time.Time `db:"date"`
}
