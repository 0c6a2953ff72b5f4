package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePlanned AttendanceStatus = "PLANNED"
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePlanned, AttendancePresent, AttendanceAbsent, AttendanceExcused:
		return true
	default:
		return false
	}
}

// HomeworkStatus tracks homework completion for a session.
type HomeworkStatus string

const (
	HomeworkNone       HomeworkStatus = "NO_HOMEWORK"
	HomeworkCompleted  HomeworkStatus = "COMPLETED"
	HomeworkIncomplete HomeworkStatus = "INCOMPLETE"
)

// StudentSession is the attendance record of one student for one session.
// A record with OriginalSessionID set represents a makeup attendance.
type StudentSession struct {
	StudentID         string           `db:"student_id" json:"studentId"`
	SessionID         string           `db:"session_id" json:"sessionId"`
	AttendanceStatus  AttendanceStatus `db:"attendance_status" json:"attendanceStatus"`
	HomeworkStatus    HomeworkStatus   `db:"homework_status" json:"homeworkStatus"`
	IsMakeup          bool             `db:"is_makeup" json:"isMakeup"`
	MakeupSessionID   *string          `db:"makeup_session_id" json:"makeupSessionId,omitempty"`
	OriginalSessionID *string          `db:"original_session_id" json:"originalSessionId,omitempty"`
	RecordedAt        *time.Time       `db:"recorded_at" json:"recordedAt,omitempty"`
	Note              *string          `db:"note" json:"note,omitempty"`
}

// CommittedSession is a session the student is scheduled to attend, used for conflict checks.
type CommittedSession struct {
	Session
	IsMakeup bool `db:"is_makeup" json:"isMakeup"`
}

// AttendedSyllabusPoint is a syllabus point a student attended in a class.
type AttendedSyllabusPoint struct {
	SubjectSessionID string `db:"subject_session_id"`
	SequenceNo       int    `db:"sequence_no"`
}
