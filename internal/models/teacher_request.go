package models

import "time"

// TeacherRequestType enumerates teacher-side schedule exceptions.
type TeacherRequestType string

const (
	TeacherRequestSwap           TeacherRequestType = "SWAP"
	TeacherRequestReschedule     TeacherRequestType = "RESCHEDULE"
	TeacherRequestModalityChange TeacherRequestType = "MODALITY_CHANGE"
)

// TeacherRequest is a teacher's pending change for one session. Only its expiry is handled here.
type TeacherRequest struct {
	ID          string             `db:"id" json:"id"`
	TeacherID   string             `db:"teacher_id" json:"teacherId"`
	SessionID   string             `db:"session_id" json:"sessionId"`
	RequestType TeacherRequestType `db:"request_type" json:"requestType"`
	Status      RequestStatus      `db:"status" json:"status"`
	SubmittedAt time.Time          `db:"submitted_at" json:"submittedAt"`
	Note        *string            `db:"note" json:"note,omitempty"`
}
