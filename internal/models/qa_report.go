package models

import "time"

// QA report vocabulary.
const (
	QAReportTypeClassroomObservation = "CLASSROOM_OBSERVATION"
	QAReportStatusSubmitted          = "SUBMITTED"
	QAReportAuthorSystem             = "SYSTEM"
)

// QAReportKind distinguishes why a placeholder was synthesised.
type QAReportKind string

const (
	QAKindAutoCompleted QAReportKind = "AUTO_COMPLETED"
	QAKindMissingNote   QAReportKind = "MISSING_TEACHER_NOTE"
	QAKindBackfill      QAReportKind = "BACKFILL"
)

// QAReport is a quality-assurance record attached to a completed session.
type QAReport struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"sessionId"`
	ClassID    string    `db:"class_id" json:"classId"`
	ReportType string    `db:"report_type" json:"reportType"`
	Status     string    `db:"status" json:"status"`
	Content    string    `db:"content" json:"content"`
	AuthorKind string    `db:"author_kind" json:"authorKind"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
