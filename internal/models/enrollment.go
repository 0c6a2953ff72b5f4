package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment binds a student to a class.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"studentId"`
	ClassID          string           `db:"class_id" json:"classId"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	JoinSessionID    *string          `db:"join_session_id" json:"joinSessionId,omitempty"`
	LeftSessionID    *string          `db:"left_session_id" json:"leftSessionId,omitempty"`
	EnrolledAt       time.Time        `db:"enrolled_at" json:"enrolledAt"`
	LeftAt           *time.Time       `db:"left_at" json:"leftAt,omitempty"`
	CapacityOverride bool             `db:"capacity_override" json:"capacityOverride"`
	OverrideReason   *string          `db:"override_reason" json:"overrideReason,omitempty"`
}

// EnrollmentDetail enriches an enrollment with the class attributes used for matching.
type EnrollmentDetail struct {
	Enrollment
	ClassCode string        `db:"class_code" json:"classCode"`
	SubjectID string        `db:"subject_id" json:"subjectId"`
	BranchID  string        `db:"branch_id" json:"branchId"`
	Modality  ClassModality `db:"modality" json:"modality"`
}
